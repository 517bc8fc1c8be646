package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/testutil"
)

func TestJoinAvailableOrInactiveBookIsConflict(t *testing.T) {
	e := newEngine(t)
	borrower := testutil.CreateBorrower(t, e.repo, "eager", domain.TierStandard)

	available := testutil.CreateBook(t, e.repo, "On The Shelf", domain.BookAvailable, nil)
	_, err := e.waitlists.Join(available.ID, borrower)
	assert.ErrorIs(t, err, ErrConflict)

	inactive := testutil.CreateBook(t, e.repo, "Out Of Print", domain.BookInactive, nil)
	_, err = e.waitlists.Join(inactive.ID, borrower)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestJoinTwiceIsConflict(t *testing.T) {
	e := newEngine(t)
	borrower := testutil.CreateBorrower(t, e.repo, "keen", domain.TierStandard)
	book := testutil.CreateBook(t, e.repo, "One Seat", domain.BookCheckedOut, nil)

	_, err := e.waitlists.Join(book.ID, borrower)
	require.NoError(t, err)

	_, err = e.waitlists.Join(book.ID, borrower)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestQueueOrderRanksPriorityFirst(t *testing.T) {
	e := newEngine(t)
	book := testutil.CreateBook(t, e.repo, "Long Line", domain.BookCheckedOut, nil)

	s1 := testutil.CreateBorrower(t, e.repo, "standard-one", domain.TierStandard)
	s2 := testutil.CreateBorrower(t, e.repo, "standard-two", domain.TierStandard)
	p1 := testutil.CreateBorrower(t, e.repo, "premium-late", domain.TierPremium)

	for _, b := range []*domain.Borrower{s1, s2, p1} {
		_, err := e.waitlists.Join(book.ID, b)
		require.NoError(t, err)
	}

	entries, err := e.waitlists.EntriesForBook(book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Priority outranks arrival order; within a class, position decides.
	assert.Equal(t, p1.ID, entries[0].BorrowerID)
	assert.Equal(t, s1.ID, entries[1].BorrowerID)
	assert.Equal(t, s2.ID, entries[2].BorrowerID)

	assert.Equal(t, 1, entries[1].Position)
	assert.Equal(t, 2, entries[2].Position)
	assert.Equal(t, 3, entries[0].Position)
}

func TestLeaveMarksEntryExpired(t *testing.T) {
	e := newEngine(t)
	borrower := testutil.CreateBorrower(t, e.repo, "flighty", domain.TierStandard)
	book := testutil.CreateBook(t, e.repo, "Changed My Mind", domain.BookCheckedOut, nil)

	_, err := e.waitlists.Join(book.ID, borrower)
	require.NoError(t, err)

	require.NoError(t, e.waitlists.Leave(book.ID, borrower.ID))

	_, err = db.GetOpenEntryForBorrower(e.repo.DB, book.ID, borrower.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Leaving again finds no open entry.
	assert.ErrorIs(t, e.waitlists.Leave(book.ID, borrower.ID), db.ErrNotFound)
}
