package models

import "time"

// ReadBook is one completed loan in a user's reading history.
type ReadBook struct {
	BookID     string    `json:"book_id" firestore:"book_id"`
	Title      string    `json:"title" firestore:"title"`
	Authors    []string  `json:"authors" firestore:"authors"`
	BranchID   string    `json:"branch_id" firestore:"branch_id"`
	ReturnDate time.Time `json:"return_date" firestore:"return_date"`
	EventID    string    `json:"event_id" firestore:"event_id"`
}

// User is the durable reader document.
type User struct {
	ID             string     `json:"id" firestore:"-"`
	ReadingHistory []ReadBook `json:"reading_history" firestore:"reading_history"`
	ReadingsCount  int        `json:"readings_count" firestore:"readings_count"`
	UpdatedAt      time.Time  `json:"updated_at" firestore:"updated_at"`
}

// HasRead reports whether the history already holds the given return event.
func (u *User) HasRead(eventID string) bool {
	for _, rb := range u.ReadingHistory {
		if rb.EventID == eventID {
			return true
		}
	}
	return false
}
