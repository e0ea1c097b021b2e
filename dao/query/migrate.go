package query

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/upsidelab/physionet-build/dao/model"
)

// Migrate brings the schema up to date. The init migration creates all
// tables; later schema changes get their own migration entries.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202402_init",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.User{},
					&model.Training{},
					&model.PublishedProject{},
					&model.DataAccess{},
					&model.DataAccessRequest{},
					&model.CloudIdentity{},
					&model.BillingSetup{},
					&model.Workflow{},
					&model.ScheduledTask{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					"scheduled_tasks", "workflows", "billing_setups",
					"cloud_identities", "data_access_requests", "data_accesses",
					"published_projects", "trainings", "users",
				)
			},
		},
	})

	if err := m.Migrate(); err != nil {
		klog.Errorf("migration failed: %v", err)
		return err
	}
	klog.Info("migrations applied")
	return nil
}
