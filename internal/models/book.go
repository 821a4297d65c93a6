package models

import "time"

// BranchHolding is the durable record of one branch's stock of a book.
type BranchHolding struct {
	Name           string `json:"name" firestore:"name"`
	NumberOfCopies int    `json:"number_of_copies" firestore:"number_of_copies"`
}

// Book is the durable catalog document of a title.
type Book struct {
	ID            string                   `json:"id" firestore:"-"`
	Title         string                   `json:"title" firestore:"title"`
	Authors       []string                 `json:"authors" firestore:"authors"`
	Branches      map[string]BranchHolding `json:"branches" firestore:"branches"`
	ReadingsCount int                      `json:"readings_count" firestore:"readings_count"`
	CreatedAt     time.Time                `json:"created_at" firestore:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at" firestore:"updated_at"`
}

// HasBranch reports whether the book is stocked by the branch.
func (b *Book) HasBranch(branchID string) bool {
	_, ok := b.Branches[branchID]
	return ok
}

// CopiesAt returns the total stock the branch holds, 0 when absent.
func (b *Book) CopiesAt(branchID string) int {
	return b.Branches[branchID].NumberOfCopies
}

// Branch is a library branch document.
type Branch struct {
	ID      string `json:"id" firestore:"-"`
	Name    string `json:"name" firestore:"name"`
	Address string `json:"address" firestore:"address"`
}
