package entity

import "fmt"

type Region string

const (
	RegionUSCentral             Region = "us-central1"
	RegionNorthAmericaNortheast Region = "northamerica-northeast1"
	RegionEuropeWest            Region = "europe-west3"
	RegionAustraliaSoutheast    Region = "australia-southeast1"
)

var regions = map[string]Region{
	string(RegionUSCentral):             RegionUSCentral,
	string(RegionNorthAmericaNortheast): RegionNorthAmericaNortheast,
	string(RegionEuropeWest):            RegionEuropeWest,
	string(RegionAustraliaSoutheast):    RegionAustraliaSoutheast,
}

// ParseRegion is strict: a region outside the known set is a hard
// deserialization failure.
func ParseRegion(s string) (Region, error) {
	if r, ok := regions[s]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown region %q", s)
}

type InstanceType string

const (
	InstanceN1Standard1  InstanceType = "n1-standard-1"
	InstanceN1Standard2  InstanceType = "n1-standard-2"
	InstanceN1Standard4  InstanceType = "n1-standard-4"
	InstanceN1Standard8  InstanceType = "n1-standard-8"
	InstanceN1Standard16 InstanceType = "n1-standard-16"
)

var instanceTypes = map[string]InstanceType{
	string(InstanceN1Standard1):  InstanceN1Standard1,
	string(InstanceN1Standard2):  InstanceN1Standard2,
	string(InstanceN1Standard4):  InstanceN1Standard4,
	string(InstanceN1Standard8):  InstanceN1Standard8,
	string(InstanceN1Standard16): InstanceN1Standard16,
}

func ParseInstanceType(s string) (InstanceType, error) {
	if t, ok := instanceTypes[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown instance type %q", s)
}

type EnvironmentType string

const (
	// The remote API spells jupyter this way. Do not fix the typo here,
	// it is what the wire carries.
	EnvironmentTypeJupyter EnvironmentType = "jypyternotebook"
	EnvironmentTypeRStudio EnvironmentType = "rstudio"
	EnvironmentTypeUnknown EnvironmentType = "unknown"
)

// ParseEnvironmentType is lenient: an absent or unrecognized value maps
// to EnvironmentTypeUnknown rather than failing deserialization.
func ParseEnvironmentType(s string) EnvironmentType {
	switch s {
	case string(EnvironmentTypeJupyter):
		return EnvironmentTypeJupyter
	case string(EnvironmentTypeRStudio):
		return EnvironmentTypeRStudio
	default:
		return EnvironmentTypeUnknown
	}
}

type EnvironmentStatus string

const (
	EnvironmentRunning          EnvironmentStatus = "running"
	EnvironmentPaused           EnvironmentStatus = "paused"
	EnvironmentBeingProvisioned EnvironmentStatus = "in-progress"
	EnvironmentDestroyed        EnvironmentStatus = "destroyed"
	EnvironmentFailed           EnvironmentStatus = "failed"
	EnvironmentStatusUnknown    EnvironmentStatus = "unknown"
)

func ParseEnvironmentStatus(s string) EnvironmentStatus {
	switch s {
	case string(EnvironmentRunning):
		return EnvironmentRunning
	case string(EnvironmentPaused):
		return EnvironmentPaused
	case string(EnvironmentBeingProvisioned):
		return EnvironmentBeingProvisioned
	case string(EnvironmentDestroyed):
		return EnvironmentDestroyed
	case string(EnvironmentFailed):
		return EnvironmentFailed
	default:
		return EnvironmentStatusUnknown
	}
}

// ResearchEnvironment is a snapshot of one remote workbench. It is owned
// by the remote system and reconstructed fresh on every query, never
// cached beyond a single request.
type ResearchEnvironment struct {
	ID           string
	Group        string // group-granting-data-access key
	Region       Region
	InstanceType InstanceType
	Type         EnvironmentType
	Status       EnvironmentStatus
	BucketName   string
	URL          string
}

func (e *ResearchEnvironment) IsRunning() bool {
	return e.Status == EnvironmentRunning
}

func (e *ResearchEnvironment) IsPaused() bool {
	return e.Status == EnvironmentPaused
}

func (e *ResearchEnvironment) IsBeingProvisioned() bool {
	return e.Status == EnvironmentBeingProvisioned
}

// IsActive reports whether the environment still occupies resources:
// running, paused or still being provisioned.
func (e *ResearchEnvironment) IsActive() bool {
	return e.IsRunning() || e.IsPaused() || e.IsBeingProvisioned()
}

type WorkspaceStatus string

const (
	WorkspacePending       WorkspaceStatus = "PENDING"
	WorkspaceInProgress    WorkspaceStatus = "IN_PROGRESS"
	WorkspaceRetrying      WorkspaceStatus = "RETRYING"
	WorkspaceDone          WorkspaceStatus = "DONE"
	WorkspaceStatusUnknown WorkspaceStatus = "UNKNOWN"
)

func ParseWorkspaceStatus(s string) WorkspaceStatus {
	switch s {
	case string(WorkspacePending), string(WorkspaceInProgress),
		string(WorkspaceRetrying), string(WorkspaceDone):
		return WorkspaceStatus(s)
	default:
		return WorkspaceStatusUnknown
	}
}

// ResearchWorkspace is the per-region container owning workbenches for a
// user. Only its setup status matters locally: it tells whether initial
// workspace provisioning has completed.
type ResearchWorkspace struct {
	GCPUserID    string
	Region       Region
	GCPProjectID string
	BillingID    string
	Email        string
	Status       WorkspaceStatus
}

func (w *ResearchWorkspace) SetupDone() bool {
	return w.Status == WorkspaceDone
}

type ExecutionState string

const (
	ExecutionActive    ExecutionState = "ACTIVE"
	ExecutionSucceeded ExecutionState = "SUCCEEDED"
	ExecutionFailed    ExecutionState = "FAILED"
	ExecutionCancelled ExecutionState = "CANCELLED"
)

// Finished reports whether the remote execution reached a terminal
// state. Every state other than ACTIVE is terminal.
func (s ExecutionState) Finished() bool {
	return s != ExecutionActive
}

func (s ExecutionState) Succeeded() bool {
	return s == ExecutionSucceeded
}
