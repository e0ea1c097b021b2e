package alert

import (
	"context"

	"github.com/upsidelab/physionet-build/dao/model"
)

// AlertInterface is the notification surface the reconciliation layer
// depends on.
type AlertInterface interface {
	// EnvironmentAccessExpired tells the user which projects their
	// environments lost access to, and that the environments have been
	// stopped pending termination.
	EnvironmentAccessExpired(ctx context.Context, user *model.User, projects []model.PublishedProject) error
}

// alertHandlerInterface is what a concrete transport (SMTP today)
// implements.
type alertHandlerInterface interface {
	SendMessageTo(ctx context.Context, email, subject, body string) error
}
