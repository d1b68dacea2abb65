package catalog

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInconsistentState is recorded when a confirmed mutation targets an entity the store no longer has.
	ErrInconsistentState = errors.New("local state diverged from the server")
	// ErrBusy is returned when a mutation targets an entity that already has one in flight.
	ErrBusy              = errors.New("another change to this entity is in progress")
	ErrNotFound          = errors.New("entity not found")
)

type DenialReason string

const (
	ReasonDefaultGrade    DenialReason = "default_grade"
	ReasonDefaultSubject  DenialReason = "default_subject"
	ReasonAlreadyAssigned DenialReason = "already_assigned"
	ReasonProtected       DenialReason = "protected"
)

// Denial is a pre-flight refusal by the guard policy. It is an expected outcome, not a failure.
type Denial struct {
	Reason DenialReason
	Kind   EntityKind
	ID     string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s %s: denied (%s)", d.Kind, d.ID, d.Reason)
}

// AsDenial reports whether err is (or wraps) a *Denial.
func AsDenial(err error) (*Denial, bool) {
	d, ok := errors.Cause(err).(*Denial)
	return d, ok
}

// GatewayFailure is a non-success answer from the mutation gateway.
type GatewayFailure struct {
	Op      string
	Status  int
	Message string
}

func (f *GatewayFailure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("%s: remote call failed with status %d", f.Op, f.Status)
	}
	return fmt.Sprintf("%s: remote call failed with status %d: %s", f.Op, f.Status, f.Message)
}

// AsGatewayFailure reports whether err is (or wraps) a *GatewayFailure.
func AsGatewayFailure(err error) (*GatewayFailure, bool) {
	f, ok := errors.Cause(err).(*GatewayFailure)
	return f, ok
}
