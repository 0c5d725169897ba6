package core

import (
	"errors"
	"fmt"
)

// ErrNotFound covers absent jobs, printers, and empty cascade targets.
var ErrNotFound = errors.New("not found")

// PolicyReason identifies which guard rejected an operation.
type PolicyReason string

const (
	ReasonUnpaid           PolicyReason = "unpaid"
	ReasonOutOfOrder       PolicyReason = "out_of_order"
	ReasonPrinterBusy      PolicyReason = "printer_busy"
	ReasonSkipLimit        PolicyReason = "skip_limit_reached"
	ReasonPresenceRequired PolicyReason = "presence_required"
	ReasonJobPrinting      PolicyReason = "job_printing"
	ReasonBadTransition    PolicyReason = "bad_transition"
)

// PolicyError is a guard rejection, never a crash. The Reason field is the
// machine-readable part of the contract.
type PolicyError struct {
	Reason  PolicyReason
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

func policyErr(reason PolicyReason, format string, args ...interface{}) *PolicyError {
	return &PolicyError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// ExternalServiceError wraps a failure of a collaborator outside this
// process, such as the payment gateway.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
