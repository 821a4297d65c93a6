package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"library-circulation/internal/models"
)

const (
	BooksCollection         = "books"
	BranchesCollection      = "branches"
	AppliedEventsCollection = "applied_events"
)

// appliedEvent marks a stream event whose durable mutation has been committed.
type appliedEvent struct {
	TaskType  models.TaskType `firestore:"task_type"`
	AppliedAt time.Time       `firestore:"applied_at"`
}

// GetBook fetches a book by ID.
func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	if id == "" {
		return nil, fmt.Errorf("book ID must not be empty")
	}

	doc, err := c.Firestore.Collection(BooksCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("book %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	var book models.Book
	if err := doc.DataTo(&book); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	book.ID = doc.Ref.ID

	return &book, nil
}

// CreateBook stores a new book, generating an ID when none is set.
func (c *Client) CreateBook(ctx context.Context, book *models.Book) error {
	if book == nil {
		return fmt.Errorf("book must not be nil")
	}
	if book.Title == "" {
		return fmt.Errorf("book title is required")
	}

	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	var ref *firestore.DocumentRef
	if book.ID == "" {
		ref = c.Firestore.Collection(BooksCollection).NewDoc()
		book.ID = ref.ID
	} else {
		ref = c.Firestore.Collection(BooksCollection).Doc(book.ID)
	}

	if _, err := ref.Set(ctx, book); err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

// ListBooks returns every book ordered by title.
func (c *Client) ListBooks(ctx context.Context) ([]*models.Book, error) {
	iter := c.Firestore.Collection(BooksCollection).OrderBy("title", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var books []*models.Book
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate books: %w", err)
		}

		var book models.Book
		if err := doc.DataTo(&book); err != nil {
			return nil, fmt.Errorf("decode book %s: %w", doc.Ref.ID, err)
		}
		book.ID = doc.Ref.ID
		books = append(books, &book)
	}

	return books, nil
}

// GetBranch fetches a library branch by ID.
func (c *Client) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	doc, err := c.Firestore.Collection(BranchesCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("branch %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}

	var branch models.Branch
	if err := doc.DataTo(&branch); err != nil {
		return nil, fmt.Errorf("decode branch: %w", err)
	}
	branch.ID = doc.Ref.ID
	return &branch, nil
}

// CreateBranch stores a library branch under its ID.
func (c *Client) CreateBranch(ctx context.Context, branch *models.Branch) error {
	if branch == nil || branch.ID == "" {
		return fmt.Errorf("branch ID is required")
	}
	if _, err := c.Firestore.Collection(BranchesCollection).Doc(branch.ID).Set(ctx, branch); err != nil {
		return fmt.Errorf("save branch: %w", err)
	}
	return nil
}

// GetBranchTotalCopies returns the stock the branch holds of a book.
func (c *Client) GetBranchTotalCopies(ctx context.Context, bookID, branchID string) (int, error) {
	book, err := c.GetBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if !book.HasBranch(branchID) {
		return 0, fmt.Errorf("book %s at branch %s: %w", bookID, branchID, models.ErrBranchEntryNotFound)
	}
	return book.CopiesAt(branchID), nil
}

// DecrementBranchCopies lowers a branch's stock by one. eventID makes the call idempotent.
func (c *Client) DecrementBranchCopies(ctx context.Context, bookID, branchID, eventID string) error {
	return c.adjustBranchCopies(ctx, bookID, branchID, eventID, -1, models.TaskDecrementBookCopies)
}

// IncrementBranchCopies raises a branch's stock by one. eventID makes the call idempotent.
func (c *Client) IncrementBranchCopies(ctx context.Context, bookID, branchID, eventID string) error {
	return c.adjustBranchCopies(ctx, bookID, branchID, eventID, 1, models.TaskIncrementBookCopies)
}

func (c *Client) adjustBranchCopies(ctx context.Context, bookID, branchID, eventID string, delta int, taskType models.TaskType) error {
	bookRef := c.Firestore.Collection(BooksCollection).Doc(bookID)
	markerRef := c.markerRef(taskType, eventID)

	return c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied, err := markerExists(tx, markerRef)
		if err != nil || applied {
			return err
		}

		book, err := getBookTx(tx, bookRef)
		if err != nil {
			return err
		}
		if !book.HasBranch(branchID) {
			return fmt.Errorf("%w: book %s is not stocked at branch %s", models.ErrBusinessRule, bookID, branchID)
		}
		if delta < 0 && book.CopiesAt(branchID) <= 0 {
			return fmt.Errorf("%w: book %s has no copies at branch %s", models.ErrBusinessRule, bookID, branchID)
		}

		err = tx.Update(bookRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"branches", branchID, "number_of_copies"}, Value: firestore.Increment(delta)},
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		})
		if err != nil {
			return err
		}
		return tx.Create(markerRef, appliedEvent{TaskType: taskType, AppliedAt: time.Now()})
	})
}

// AddBranchToBook records that a branch stocks a book. It is a no-op when the
// branch is already present.
func (c *Client) AddBranchToBook(ctx context.Context, bookID, branchID string, copies int) error {
	bookRef := c.Firestore.Collection(BooksCollection).Doc(bookID)
	branchRef := c.Firestore.Collection(BranchesCollection).Doc(branchID)

	return c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		book, err := getBookTx(tx, bookRef)
		if err != nil {
			return err
		}
		if book.HasBranch(branchID) {
			return nil
		}

		doc, err := tx.Get(branchRef)
		if isNotFound(err) {
			return fmt.Errorf("%w: branch %s does not exist", models.ErrBusinessRule, branchID)
		}
		if err != nil {
			return err
		}
		var branch models.Branch
		if err := doc.DataTo(&branch); err != nil {
			return fmt.Errorf("decode branch: %w", err)
		}

		return tx.Update(bookRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"branches", branchID}, Value: map[string]interface{}{
				"name":             branch.Name,
				"number_of_copies": copies,
			}},
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		})
	})
}

// RemoveBranchFromBook drops a branch from a book. It is a no-op when the branch is absent.
func (c *Client) RemoveBranchFromBook(ctx context.Context, bookID, branchID string) error {
	bookRef := c.Firestore.Collection(BooksCollection).Doc(bookID)

	return c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		book, err := getBookTx(tx, bookRef)
		if err != nil {
			return err
		}
		if !book.HasBranch(branchID) {
			return nil
		}

		return tx.Update(bookRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"branches", branchID}, Value: firestore.Delete},
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		})
	})
}

func getBookTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (*models.Book, error) {
	doc, err := tx.Get(ref)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: book %s does not exist", models.ErrBusinessRule, ref.ID)
	}
	if err != nil {
		return nil, err
	}

	var book models.Book
	if err := doc.DataTo(&book); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	book.ID = ref.ID
	return &book, nil
}

// markerRef scopes the marker by task type since record IDs are only unique per stream.
func (c *Client) markerRef(taskType models.TaskType, eventID string) *firestore.DocumentRef {
	return c.Firestore.Collection(AppliedEventsCollection).Doc(string(taskType) + ":" + eventID)
}

func markerExists(tx *firestore.Transaction, ref *firestore.DocumentRef) (bool, error) {
	_, err := tx.Get(ref)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
