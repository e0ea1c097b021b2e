package model

import (
	"gorm.io/gorm"
)

type AccessPolicy string

const (
	AccessPolicyOpen         AccessPolicy = "open"
	AccessPolicyRestricted   AccessPolicy = "restricted"
	AccessPolicyCredentialed AccessPolicy = "credentialed"
)

type AccessPlatform string

const (
	AccessPlatformGCPBucket   AccessPlatform = "google-bucket"
	AccessPlatformGCPBigQuery AccessPlatform = "google-bigquery"
)

// PublishedProject is a published dataset that a research environment
// can be provisioned against.
type PublishedProject struct {
	gorm.Model
	Slug         string       `gorm:"uniqueIndex;type:varchar(64);not null"`
	Title        string       `gorm:"type:varchar(256);not null"`
	Version      string       `gorm:"type:varchar(32);not null"`
	AccessPolicy AccessPolicy `gorm:"type:varchar(32);not null;default:open"`
	// Root of the project files in the storage backend, used to derive
	// the workbench bucket name for Jupyter environments.
	FileRoot string `gorm:"type:varchar(256)"`

	DataAccesses []DataAccess `gorm:"foreignKey:ProjectID"`
}

// DataAccess records where a project's data lives on a given access
// platform. Its Location is the group-granting-data-access key that the
// remote provisioning system correlates workbenches by. Correlation is
// never done on the project slug: slugs may contain characters the
// remote system rejects.
type DataAccess struct {
	gorm.Model
	ProjectID uint           `gorm:"index;not null"`
	Platform  AccessPlatform `gorm:"type:varchar(32);not null"`
	Location  string         `gorm:"type:varchar(64);not null"`
}

// DataAccessGroup returns the correlation key for the given platform,
// or "" when the project has no data access configured for it.
func (p *PublishedProject) DataAccessGroup(platform AccessPlatform) string {
	for i := range p.DataAccesses {
		if p.DataAccesses[i].Platform == platform {
			return p.DataAccesses[i].Location
		}
	}
	return ""
}
