package core

// These errors are engine errors.  Domain-level failures (a stale
// commit, an unknown call id) never surface as Go errors: they become
// state and signals so that they are replayable and observable.

// InvariantViolation occurs when a domain reducer returns a new slice
// for an action tagged for another domain.  It is fatal: the Instance
// stops rather than publish a composite it cannot trust.
type InvariantViolation struct {
	Domain  Domain
	Wrapper *ActionWrapper
}

func (e *InvariantViolation) Error() string {
	return `reducer for domain "` + string(e.Domain) +
		`" changed its slice on foreign action "` + string(e.Wrapper.Action.Kind) + `"`
}

// Messages recorded in state when a domain-level failure becomes a
// terminal response.
const (
	ErrStaleHead = "commit previous-hash does not match chain head"
	ErrCanceled  = "canceled"
)
