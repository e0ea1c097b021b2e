package envctl

import (
	"errors"
	"fmt"
)

// ErrNotWorkflowOwner rejects execution-status polls against a workflow
// belonging to a different user.
var ErrNotWorkflowOwner = errors.New("workflow does not belong to the user")

// FailureKind names one orchestration operation's failure mode. Kinds
// are sentinels: callers match them with errors.Is and translate them
// into form errors or flash messages.
type FailureKind struct {
	name string
}

func (k *FailureKind) Error() string { return k.name }

var (
	ErrIdentityProvisioningFailed          = &FailureKind{"identity provisioning failed"}
	ErrBillingVerificationFailed           = &FailureKind{"billing verification failed"}
	ErrEnvironmentCreationFailed           = &FailureKind{"environment creation failed"}
	ErrGetAvailableEnvironmentsFailed      = &FailureKind{"fetching available environments failed"}
	ErrStopEnvironmentFailed               = &FailureKind{"stopping environment failed"}
	ErrStartEnvironmentFailed              = &FailureKind{"starting environment failed"}
	ErrChangeEnvironmentInstanceTypeFailed = &FailureKind{"changing environment instance type failed"}
	ErrDeleteEnvironmentFailed             = &FailureKind{"deleting environment failed"}
	ErrGetWorkspaceDetailsFailed           = &FailureKind{"fetching workspace details failed"}
	ErrGetUserInfoFailed                   = &FailureKind{"fetching user info failed"}
)

// Error couples a failure kind with the provider-supplied message (or
// the transport error text, which lands in the same taxonomy).
type Error struct {
	Kind    *FailureKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.name
	}
	return fmt.Sprintf("%s: %s", e.Kind.name, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func failure(kind *FailureKind, message string) error {
	return &Error{Kind: kind, Message: message}
}
