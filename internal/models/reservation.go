package models

import "time"

// ActivityStatus is the state of a user's hold on a copy.
type ActivityStatus string

const (
	ActivityReserved ActivityStatus = "RESERVED"
	ActivityLoaned   ActivityStatus = "LOANED"
)

// Reservation is an active hold on one copy at one branch.
type Reservation struct {
	UserID     string    `json:"user_id"`
	BookID     string    `json:"book_id"`
	BranchID   string    `json:"branch_id"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the reservation's pickup window has passed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TimeLeft returns the remaining pickup window, never negative.
func (r *Reservation) TimeLeft(now time.Time) time.Duration {
	if r.IsExpired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// UserActivity is one entry of a user's active reservations and loans.
type UserActivity struct {
	BookID       string         `json:"book_id"`
	BranchID     string         `json:"branch_id"`
	Status       ActivityStatus `json:"status"`
	Title        string         `json:"title"`
	LibraryName  string         `json:"library_name"`
	DeadlineDate time.Time      `json:"deadline_date"`
}
