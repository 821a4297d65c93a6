package models

import "errors"

// Conflict
var (
	ErrReservationConflict       = errors.New("reservation conflict")
	ErrNoAvailableCopies         = errors.New("no available copies")
	ErrLibraryEntryAlreadyExists = errors.New("library entry already exists")
	ErrCannotRemoveBook          = errors.New("cannot remove book while copies are out")
)

// Not found
var (
	ErrNotFound            = errors.New("not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrBranchEntryNotFound = errors.New("branch availability entry not found")
)

var (
	// ErrReservationExpired means the pickup window closed before the loan was issued.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrBusinessRule marks a task failure that retrying cannot fix.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrNoProcessor means a task type has no registered handler.
	ErrNoProcessor = errors.New("no processor registered for task type")
)

// IsConflict reports whether err is one of the conflict errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrReservationConflict) ||
		errors.Is(err, ErrNoAvailableCopies) ||
		errors.Is(err, ErrLibraryEntryAlreadyExists) ||
		errors.Is(err, ErrCannotRemoveBook)
}

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrBranchEntryNotFound)
}

// ErrConcurrentUpdate means a task was modified since it was read.
var ErrConcurrentUpdate = errors.New("concurrent update")

// ErrInvalidArgument marks a request rejected before touching any store.
var ErrInvalidArgument = errors.New("invalid argument")
