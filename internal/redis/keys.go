package redis

import (
	"fmt"
	"strings"
)

// Sorted sets indexing expiry times in epoch milliseconds.
const (
	ReservationExpiryKey = "zset:res-exp"
	LoanExpiryKey        = "zset:loan-exp"
)

// Streams mirroring fast-store mutations into the durable store.
const (
	StreamDecrementCopies = "stream:decrement-copies"
	StreamIncrementCopies = "stream:increment-copies"
	StreamAddLibrary      = "stream:add-library"
	StreamRemoveLibrary   = "stream:remove-library"
	StreamCompletedLoans  = "stream:completed-loans"
)

// Streams lists every relayed stream.
var Streams = []string{
	StreamDecrementCopies,
	StreamIncrementCopies,
	StreamAddLibrary,
	StreamRemoveLibrary,
	StreamCompletedLoans,
}

// GroupName returns the consumer group of a stream, e.g. "decrement-copies-group".
func GroupName(stream string) string {
	return strings.TrimPrefix(stream, "stream:") + "-group"
}

// AvailabilityKey is the integer counter of free copies of a book at a branch.
func AvailabilityKey(bookID, branchID string) string {
	return fmt.Sprintf("book:%s:lib:%s:avail", bookID, branchID)
}

// UserActivityKey is the hash of a user's active reservations and loans.
func UserActivityKey(userID string) string {
	return fmt.Sprintf("user:%s:active", userID)
}

func branchReservationsKey(branchID string) string {
	return fmt.Sprintf("lib:%s:res", branchID)
}

func branchLoansKey(branchID string) string {
	return fmt.Sprintf("lib:%s:loans", branchID)
}

func branchOverdueKey(branchID string) string {
	return fmt.Sprintf("lib:%s:overdue", branchID)
}

func activityField(branchID, bookID string) string {
	return fmt.Sprintf("lib:%s:book:%s:info", branchID, bookID)
}

func ledgerField(userID, bookID string) string {
	return fmt.Sprintf("user:%s:book:%s:start", userID, bookID)
}

func expiryMember(userID, bookID, branchID string) string {
	return fmt.Sprintf("user:%s:book:%s:lib:%s:exp", userID, bookID, branchID)
}

// parseLedgerField splits "user:{u}:book:{b}:start".
func parseLedgerField(field string) (userID, bookID string, ok bool) {
	parts := strings.Split(field, ":")
	if len(parts) != 5 || parts[0] != "user" || parts[2] != "book" || parts[4] != "start" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// parseActivityField splits "lib:{l}:book:{b}:info".
func parseActivityField(field string) (branchID, bookID string, ok bool) {
	parts := strings.Split(field, ":")
	if len(parts) != 5 || parts[0] != "lib" || parts[2] != "book" || parts[4] != "info" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// parseExpiryMember splits "user:{u}:book:{b}:lib:{l}:exp".
func parseExpiryMember(member string) (userID, bookID, branchID string, ok bool) {
	parts := strings.Split(member, ":")
	if len(parts) != 7 || parts[0] != "user" || parts[2] != "book" || parts[4] != "lib" || parts[6] != "exp" {
		return "", "", "", false
	}
	return parts[1], parts[3], parts[5], true
}
