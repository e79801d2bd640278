// Package businessflow contains the core business logic and use cases for broadcast workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Customer-related errors
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountInactive  = errors.New("account is inactive")

	// Broadcast-related errors
	ErrBroadcastNotFound   = errors.New("broadcast not found")
	ErrBroadcastNotRunning = errors.New("broadcast is not running")
	ErrBroadcastTerminal   = errors.New("broadcast is in a terminal status")
	ErrInvalidTransition   = errors.New("invalid broadcast status transition")
	ErrTitleRequired       = errors.New("broadcast title is required")
	ErrInvalidWindow       = errors.New("broadcast delivery window is invalid")
	ErrInvalidWeekday      = errors.New("unknown weekday name")

	// Setting-related errors
	ErrSettingNotFound    = errors.New("setting not found")
	ErrSettingNotActive   = errors.New("setting is not active")
	ErrContentRequired    = errors.New("setting content is required")
	ErrInvalidSettingType = errors.New("invalid setting type")
	ErrDayRequired        = errors.New("day offset is required for this setting type")
	ErrInvalidDayInterval = errors.New("recurring day interval must be at least 1")

	// Contact and enrollment errors
	ErrContactNotFound      = errors.New("contact not found")
	ErrContactInactive      = errors.New("contact is inactive")
	ErrContactOptedOut      = errors.New("contact has opted out")
	ErrAlreadyEnrolled      = errors.New("contact is already enrolled")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrEnrollmentNotRunning = errors.New("enrollment is not running")
	ErrEnrollmentNotPaused  = errors.New("enrollment is not paused")
	ErrEnrollmentTerminal   = errors.New("enrollment is in a terminal status")

	// Line number errors
	ErrLineNumberNotFound  = errors.New("line number not found")
	ErrLineNumberNotUsable = errors.New("line number is not verified or not active")

	// Wallet errors
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Scheduling errors
	ErrChainBusy            = errors.New("chain advance already in progress for contact")
	ErrNoDeliverableInstant = errors.New("no deliverable instant inside the window")
	ErrQueueEntryNotFound   = errors.New("queue entry not found")

	// Control request errors
	ErrInvalidAction     = errors.New("action is not valid for scope")
	ErrInvalidSourceType = errors.New("invalid enrollment source type")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsBroadcastNotFound(err error) bool {
	return errors.Is(err, ErrBroadcastNotFound)
}

func IsBroadcastNotRunning(err error) bool {
	return errors.Is(err, ErrBroadcastNotRunning)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsContactOptedOut(err error) bool {
	return errors.Is(err, ErrContactOptedOut)
}

func IsAlreadyEnrolled(err error) bool {
	return errors.Is(err, ErrAlreadyEnrolled)
}

func IsEnrollmentNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound)
}

func IsChainBusy(err error) bool {
	return errors.Is(err, ErrChainBusy)
}

func IsNoDeliverableInstant(err error) bool {
	return errors.Is(err, ErrNoDeliverableInstant)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsInvalidAction(err error) bool {
	return errors.Is(err, ErrInvalidAction)
}
