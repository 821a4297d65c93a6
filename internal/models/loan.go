package models

import "time"

// Loan is a copy handed over to a user.
type Loan struct {
	UserID   string    `json:"user_id"`
	BookID   string    `json:"book_id"`
	BranchID string    `json:"branch_id"`
	LoanedAt time.Time `json:"loaned_at"`
	DueDate  time.Time `json:"due_date"`
}

// IsOverdue reports whether the loan is past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return now.After(l.DueDate)
}

// DaysUntilDue returns whole days left until the due date.
func (l *Loan) DaysUntilDue(now time.Time) int {
	return int(l.DueDate.Sub(now).Hours() / 24)
}

// OverdueLoan is a loan flagged past due by the loan sweeper.
type OverdueLoan struct {
	UserID          string    `json:"user_id"`
	BookID          string    `json:"book_id"`
	BranchID        string    `json:"branch_id"`
	MarkedOverdueAt time.Time `json:"marked_overdue_at"`
}
