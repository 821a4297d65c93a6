package models

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of an outbox task.
type TaskStatus string

const (
	TaskPending        TaskStatus = "PENDING"
	TaskInProgress     TaskStatus = "IN_PROGRESS"
	TaskRetryScheduled TaskStatus = "RETRY_SCHEDULED"
	TaskCompleted      TaskStatus = "COMPLETED"
	TaskFailed         TaskStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskRetryScheduled, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// IsClaimable reports whether a worker may move the task to IN_PROGRESS.
func (s TaskStatus) IsClaimable() bool {
	return s == TaskPending || s == TaskRetryScheduled
}

// TaskType names the side effect a task applies.
type TaskType string

const (
	TaskDecrementBookCopies  TaskType = "DECREMENT_BOOK_COPIES"
	TaskIncrementBookCopies  TaskType = "INCREMENT_BOOK_COPIES"
	TaskAddBranchToBook      TaskType = "ADD_BRANCH_TO_BOOK"
	TaskRemoveBranchFromBook TaskType = "REMOVE_BRANCH_FROM_BOOK"
	TaskAddReadBook          TaskType = "ADD_READ_BOOK"
	TaskReleaseReservation   TaskType = "RELEASE_RESERVATION"
	TaskMarkLoanOverdue      TaskType = "MARK_LOAN_OVERDUE"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{
	TaskDecrementBookCopies,
	TaskIncrementBookCopies,
	TaskAddBranchToBook,
	TaskRemoveBranchFromBook,
	TaskAddReadBook,
	TaskReleaseReservation,
	TaskMarkLoanOverdue,
}

// Payload keys shared by producers and processors.
const (
	PayloadUserID       = "userId"
	PayloadBookID       = "bookId"
	PayloadLibraryID    = "libraryId"
	PayloadInitialValue = "initialValue"
	PayloadTimestamp    = "timestamp"
	PayloadEventID      = "eventId"
	PayloadEventType    = "eventType"
	PayloadExpiresAt    = "expiresAt"
)

// Event types carried by sweeper payloads.
const (
	EventExpiredReservation = "EXPIRED_RESERVATION"
	EventExpiredLoan        = "EXPIRED_LOAN"
)

// OutboxTask is a durable unit of deferred work.
type OutboxTask struct {
	ID           string            `json:"id" firestore:"-"`
	Type         TaskType          `json:"type" firestore:"type"`
	Payload      map[string]string `json:"payload" firestore:"payload"`
	Status       TaskStatus        `json:"status" firestore:"status"`
	RetryCount   int               `json:"retry_count" firestore:"retry_count"`
	ErrorMessage string            `json:"error_message,omitempty" firestore:"error_message"`
	StackTrace   string            `json:"stack_trace,omitempty" firestore:"stack_trace"`
	CreatedAt    time.Time         `json:"created_at" firestore:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" firestore:"updated_at"`
	NextRetryAt  time.Time         `json:"next_retry_at" firestore:"next_retry_at"`
	Version      int64             `json:"version" firestore:"version"`
}

// Require returns the payload value for key or a business-rule error when it is missing.
func (t *OutboxTask) Require(key string) (string, error) {
	v := t.Payload[key]
	if v == "" {
		return "", fmt.Errorf("%w: task %s payload missing %q", ErrBusinessRule, t.ID, key)
	}
	return v, nil
}
