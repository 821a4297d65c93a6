package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"library-circulation/internal/models"
)

const (
	UsersCollection = "users"
)

// GetUser fetches a reader by ID.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user ID must not be empty")
	}

	doc, err := c.Firestore.Collection(UsersCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	user.ID = doc.Ref.ID
	return &user, nil
}

// CreateUser stores a reader under its ID.
func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user ID is required")
	}
	user.UpdatedAt = time.Now()
	if _, err := c.Firestore.Collection(UsersCollection).Doc(user.ID).Set(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// AddReadBook appends a returned book to the reader's history and bumps the
// readings counters of the reader and the book. eventID makes the call idempotent.
func (c *Client) AddReadBook(ctx context.Context, userID, bookID, branchID string, returnedAt time.Time, eventID string) error {
	userRef := c.Firestore.Collection(UsersCollection).Doc(userID)
	bookRef := c.Firestore.Collection(BooksCollection).Doc(bookID)
	markerRef := c.markerRef(models.TaskAddReadBook, eventID)

	return c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied, err := markerExists(tx, markerRef)
		if err != nil || applied {
			return err
		}

		book, err := getBookTx(tx, bookRef)
		if err != nil {
			return err
		}
		if _, err := tx.Get(userRef); isNotFound(err) {
			return fmt.Errorf("%w: user %s does not exist", models.ErrBusinessRule, userID)
		} else if err != nil {
			return err
		}

		entry := models.ReadBook{
			BookID:     bookID,
			Title:      book.Title,
			Authors:    book.Authors,
			BranchID:   branchID,
			ReturnDate: returnedAt,
			EventID:    eventID,
		}
		err = tx.Update(userRef, []firestore.Update{
			{Path: "reading_history", Value: firestore.ArrayUnion(entry)},
			{Path: "readings_count", Value: firestore.Increment(1)},
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		})
		if err != nil {
			return err
		}
		err = tx.Update(bookRef, []firestore.Update{
			{Path: "readings_count", Value: firestore.Increment(1)},
		})
		if err != nil {
			return err
		}
		return tx.Create(markerRef, appliedEvent{TaskType: models.TaskAddReadBook, AppliedAt: time.Now()})
	})
}
