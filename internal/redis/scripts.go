package redis

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"library-circulation/internal/models"
)

//go:embed scripts/*.lua
var scriptFS embed.FS

// script is a Lua script run through EVALSHA.
type script struct {
	name string
	lua  *goredis.Script
}

func mustLoadScript(name string) *script {
	src, err := scriptFS.ReadFile("scripts/" + name + ".lua")
	if err != nil {
		panic(fmt.Sprintf("embedded script %s: %v", name, err))
	}
	return &script{name: name, lua: goredis.NewScript(string(src))}
}

// run executes the script by digest. A NOSCRIPT reply loads the source once and retries once.
func (s *script) run(ctx context.Context, c goredis.Scripter, keys []string, args ...interface{}) *goredis.Cmd {
	cmd := s.lua.EvalSha(ctx, c, keys, args...)
	if err := cmd.Err(); err == nil || !goredis.HasErrorPrefix(err, "NOSCRIPT") {
		return cmd
	}
	if err := s.lua.Load(ctx, c).Err(); err != nil {
		failed := goredis.NewCmd(ctx)
		failed.SetErr(fmt.Errorf("load script %s: %w", s.name, err))
		return failed
	}
	return s.lua.EvalSha(ctx, c, keys, args...)
}

type scriptSet struct {
	reserve            *script
	cancelReservation  *script
	markAsLoan         *script
	completeLoan       *script
	decrementCopies    *script
	incrementCopies    *script
	addBranchEntry     *script
	removeBranchEntry  *script
	releaseReservation *script
	markOverdue        *script
	removeExpiryMember *script
}

func loadScripts() *scriptSet {
	return &scriptSet{
		reserve:            mustLoadScript("reserve"),
		cancelReservation:  mustLoadScript("cancel_reservation"),
		markAsLoan:         mustLoadScript("mark_as_loan"),
		completeLoan:       mustLoadScript("complete_loan"),
		decrementCopies:    mustLoadScript("decrement_copies"),
		incrementCopies:    mustLoadScript("increment_copies"),
		addBranchEntry:     mustLoadScript("add_branch_entry"),
		removeBranchEntry:  mustLoadScript("remove_branch_entry"),
		releaseReservation: mustLoadScript("release_reservation"),
		markOverdue:        mustLoadScript("mark_overdue"),
		removeExpiryMember: mustLoadScript("remove_expiry_member"),
	}
}

func (ss *scriptSet) all() []*script {
	return []*script{
		ss.reserve, ss.cancelReservation, ss.markAsLoan, ss.completeLoan,
		ss.decrementCopies, ss.incrementCopies, ss.addBranchEntry, ss.removeBranchEntry,
		ss.releaseReservation, ss.markOverdue, ss.removeExpiryMember,
	}
}

// scriptError maps a coded script error reply to a domain error.
func scriptError(err error) error {
	if err == nil {
		return nil
	}
	var rerr goredis.Error
	if !errors.As(err, &rerr) {
		return err
	}

	msg := rerr.Error()
	switch {
	case strings.Contains(msg, "CONFLICT"):
		return fmt.Errorf("%w: %s", models.ErrReservationConflict, detail(msg, "CONFLICT"))
	case strings.Contains(msg, "NO_COPIES"):
		return models.ErrNoAvailableCopies
	case strings.Contains(msg, "ENTRY_EXISTS"):
		return models.ErrLibraryEntryAlreadyExists
	case strings.Contains(msg, "CANNOT_REMOVE"):
		return fmt.Errorf("%w: %s", models.ErrCannotRemoveBook, detail(msg, "CANNOT_REMOVE"))
	case strings.Contains(msg, "EXPIRED"):
		return models.ErrReservationExpired
	case strings.Contains(msg, "NOT_FOUND reservation"):
		return models.ErrReservationNotFound
	case strings.Contains(msg, "NOT_FOUND"):
		return models.ErrBranchEntryNotFound
	}
	return err
}

func detail(msg, code string) string {
	_, rest, _ := strings.Cut(msg, code)
	return strings.TrimSpace(rest)
}
