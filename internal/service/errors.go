package service

import (
	"errors"
	"fmt"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("invalid stage transition")
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrDuplicateBid       = errors.New("bidder already has an open bid on this contract")
	ErrContractNotOpen    = errors.New("contract is not open for bidding")
	ErrTerminalState      = errors.New("contract is closed")
	ErrConflict           = errors.New("concurrent update conflict, retry")
	ErrUnavailable        = errors.New("storage unavailable")
)

// InvalidTransitionError reports a requested edge missing from the stage
// graph, carrying the legal next stages for the caller.
type InvalidTransitionError struct {
	From        model.Stage
	To          model.Stage
	AllowedNext []model.Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition %s -> %s (allowed: %v)", e.From, e.To, e.AllowedNext)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// PreconditionError names the stage-specific requirement that blocked a
// transition.
type PreconditionError struct {
	Stage       model.Stage
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot enter %s: %s", e.Stage, e.Requirement)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionNotMet
}
