package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/testutil"
)

var accessorBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccessorDB(t *testing.T) *db.Repository {
	t.Helper()
	repo, err := testutil.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOneActiveCheckoutPerBook(t *testing.T) {
	repo := newAccessorDB(t)
	borrower := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	other := testutil.CreateBorrower(t, repo, "pat", domain.TierPremium)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)

	testutil.CreateCheckout(t, repo, book, borrower, accessorBase, accessorBase.AddDate(0, 0, 14))

	// The partial unique index rejects a second open checkout for the book.
	_, err := db.InsertCheckout(repo.DB, &domain.Checkout{
		BookID:       book.ID,
		BorrowerID:   other.ID,
		Status:       domain.CheckoutActive,
		CheckedOutAt: accessorBase,
		DueDate:      accessorBase.AddDate(0, 0, 17),
	})
	assert.Error(t, err)
}

func TestUpdateCheckoutStatusGuardsReturnedAt(t *testing.T) {
	repo := newAccessorDB(t)
	borrower := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)
	checkout := testutil.CreateCheckout(t, repo, book, borrower, accessorBase, accessorBase.AddDate(0, 0, 14))

	// Returned without a timestamp, or open with one, is rejected outright.
	assert.Error(t, db.UpdateCheckoutStatus(repo.DB, checkout.ID, domain.CheckoutReturned, nil))
	now := accessorBase.AddDate(0, 0, 3)
	assert.Error(t, db.UpdateCheckoutStatus(repo.DB, checkout.ID, domain.CheckoutActive, &now))

	require.NoError(t, db.UpdateCheckoutStatus(repo.DB, checkout.ID, domain.CheckoutReturned, &now))
	got, err := db.GetCheckout(repo.DB, checkout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)
	assert.True(t, got.ReturnedAt.Equal(now))

	require.ErrorIs(t, db.UpdateCheckoutStatus(repo.DB, int64(9999), domain.CheckoutReturned, &now), db.ErrNotFound)
}

func TestCountOverdueForBorrowerUsesDayBoundary(t *testing.T) {
	repo := newAccessorDB(t)
	borrower := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)

	due := accessorBase.AddDate(0, 0, 14)
	testutil.CreateCheckout(t, repo, book, borrower, accessorBase, due)

	// Later the same day is not overdue yet; the next day is.
	count, err := db.CountOverdueForBorrower(repo.DB, borrower.ID, due.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = db.CountOverdueForBorrower(repo.DB, borrower.ID, due.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRevertOverdueCheckouts(t *testing.T) {
	repo := newAccessorDB(t)
	borrower := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	bookA := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)
	bookB := testutil.CreateBook(t, repo, "Hyperion", domain.BookCheckedOut, nil)

	overdue := testutil.CreateCheckout(t, repo, bookA, borrower, accessorBase, accessorBase.AddDate(0, 0, 14))
	require.NoError(t, db.UpdateCheckoutStatus(repo.DB, overdue.ID, domain.CheckoutOverdue, nil))
	active := testutil.CreateCheckout(t, repo, bookB, borrower, accessorBase, accessorBase.AddDate(0, 0, 14))

	reverted, err := db.RevertOverdueCheckouts(repo.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reverted)

	for _, id := range []int64{overdue.ID, active.ID} {
		got, err := db.GetCheckout(repo.DB, id)
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutActive, got.Status)
	}
}

func TestWaitlistRankedOrder(t *testing.T) {
	repo := newAccessorDB(t)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)
	first := testutil.CreateBorrower(t, repo, "first-standard", domain.TierStandard)
	second := testutil.CreateBorrower(t, repo, "second-standard", domain.TierStandard)
	late := testutil.CreateBorrower(t, repo, "late-premium", domain.TierPremium)

	testutil.JoinWaitlist(t, repo, book, first)
	testutil.JoinWaitlist(t, repo, book, second)
	testutil.JoinWaitlist(t, repo, book, late)

	entries, err := db.ListWaitingForBook(repo.DB, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Priority outranks arrival order; within a class, position decides.
	assert.Equal(t, late.ID, entries[0].BorrowerID)
	assert.Equal(t, first.ID, entries[1].BorrowerID)
	assert.Equal(t, second.ID, entries[2].BorrowerID)
	assert.Equal(t, 3, entries[0].Position)
}

func TestExpireNotifiedEntries(t *testing.T) {
	repo := newAccessorDB(t)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookOnHoldWaitlist, nil)
	sam := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	pat := testutil.CreateBorrower(t, repo, "pat", domain.TierPremium)

	expiring := testutil.JoinWaitlist(t, repo, book, sam)
	open := testutil.JoinWaitlist(t, repo, book, pat)

	notified := accessorBase
	soon := accessorBase.Add(24 * time.Hour)
	later := accessorBase.Add(48 * time.Hour)
	require.NoError(t, db.UpdateWaitlistEntryStatus(repo.DB, expiring.ID, domain.WaitlistNotified, &notified, &soon))
	require.NoError(t, db.UpdateWaitlistEntryStatus(repo.DB, open.ID, domain.WaitlistNotified, &notified, &later))

	expired, err := db.ExpireNotifiedEntries(repo.DB, accessorBase.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	remaining, err := db.ListOpenForBook(repo.DB, book.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pat.ID, remaining[0].BorrowerID)
}

func TestRevertNotifiedForBook(t *testing.T) {
	repo := newAccessorDB(t)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookOnHoldWaitlist, nil)
	sam := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)

	entry := testutil.JoinWaitlist(t, repo, book, sam)
	notified := accessorBase
	expires := accessorBase.Add(24 * time.Hour)
	require.NoError(t, db.UpdateWaitlistEntryStatus(repo.DB, entry.ID, domain.WaitlistNotified, &notified, &expires))

	reverted, err := db.RevertNotifiedForBook(repo.DB, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reverted)

	got, err := db.GetOpenEntryForBorrower(repo.DB, book.ID, sam.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, got.Status)
	assert.Nil(t, got.NotifiedAt)
	assert.Nil(t, got.ExpiresAt)
}

func TestNotificationDedupAndWindowDelete(t *testing.T) {
	repo := newAccessorDB(t)
	borrower := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	book := testutil.CreateBook(t, repo, "Dune", domain.BookCheckedOut, nil)

	exists, err := db.NotificationExists(repo.DB, borrower.ID, &book.ID, domain.NotifyOverdue)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.InsertNotification(repo.DB, &domain.Notification{
		BorrowerID: borrower.ID,
		Type:       domain.NotifyOverdue,
		Title:      "Book overdue",
		BookID:     &book.ID,
	}, accessorBase.Add(time.Hour))
	require.NoError(t, err)

	exists, err = db.NotificationExists(repo.DB, borrower.ID, &book.ID, domain.NotifyOverdue)
	require.NoError(t, err)
	assert.True(t, exists)

	// A pre-window notification of a non-simulated type survives the delete.
	_, err = db.InsertNotification(repo.DB, &domain.Notification{
		BorrowerID: borrower.ID,
		Type:       domain.NotifyCheckoutConfirmed,
		Title:      "Checked out",
		BookID:     &book.ID,
	}, accessorBase.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := db.DeleteNotificationsByTypesSince(repo.DB, domain.SimulatedNotificationTypes, accessorBase)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	list, err := db.ListNotificationsForBorrower(repo.DB, borrower.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotifyCheckoutConfirmed, list[0].Type)
}

func TestMarkNotificationReadScopedToBorrower(t *testing.T) {
	repo := newAccessorDB(t)
	owner := testutil.CreateBorrower(t, repo, "sam", domain.TierStandard)
	stranger := testutil.CreateBorrower(t, repo, "pat", domain.TierStandard)

	id, err := db.InsertNotification(repo.DB, &domain.Notification{
		BorrowerID: owner.ID,
		Type:       domain.NotifyDueSoon,
		Title:      "Due soon",
	}, accessorBase)
	require.NoError(t, err)

	require.ErrorIs(t, db.MarkNotificationRead(repo.DB, id, stranger.ID), db.ErrNotFound)
	require.NoError(t, db.MarkNotificationRead(repo.DB, id, owner.ID))

	list, err := db.ListNotificationsForBorrower(repo.DB, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
}

func TestSettingsUpsertAndDelete(t *testing.T) {
	repo := newAccessorDB(t)

	_, err := db.GetSetting(repo.DB, "nonexistent")
	require.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, db.SetSetting(repo.DB, "greeting", "hello"))
	require.NoError(t, db.SetSetting(repo.DB, "greeting", "goodbye"))

	value, err := db.GetSetting(repo.DB, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "goodbye", value)

	require.NoError(t, db.DeleteSetting(repo.DB, "greeting"))
	require.NoError(t, db.DeleteSetting(repo.DB, "greeting"))
	_, err = db.GetSetting(repo.DB, "greeting")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestAutoReturnTuplesRoundTrip(t *testing.T) {
	repo := newAccessorDB(t)

	tuples, err := db.GetAutoReturns(repo.DB)
	require.NoError(t, err)
	assert.Empty(t, tuples)

	applied := accessorBase.Add(time.Hour)
	in := []domain.AutoReturn{
		{CheckoutID: 1, BookID: 2, ReturnDate: accessorBase.AddDate(0, 0, 3), OriginalStatus: domain.CheckoutActive},
		{CheckoutID: 4, BookID: 5, ReturnDate: accessorBase.AddDate(0, 0, 7), OriginalStatus: domain.CheckoutOverdue, AppliedAt: &applied},
	}
	require.NoError(t, db.SetAutoReturns(repo.DB, in))

	out, err := db.GetAutoReturns(repo.DB)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].CheckoutID)
	assert.True(t, out[0].ReturnDate.Equal(in[0].ReturnDate))
	assert.Nil(t, out[0].AppliedAt)
	assert.Equal(t, domain.CheckoutOverdue, out[1].OriginalStatus)
	require.NotNil(t, out[1].AppliedAt)
	assert.True(t, out[1].AppliedAt.Equal(applied))
}

func TestListBooksWithExpiredHolds(t *testing.T) {
	repo := newAccessorDB(t)

	past := accessorBase.Add(-time.Hour)
	future := accessorBase.Add(time.Hour)
	stale := testutil.CreateBook(t, repo, "Stale Hold", domain.BookOnHoldWaitlist, &past)
	testutil.CreateBook(t, repo, "Live Hold", domain.BookOnHoldPremium, &future)
	testutil.CreateBook(t, repo, "Shelved", domain.BookAvailable, nil)

	books, err := db.ListBooksWithExpiredHolds(repo.DB, accessorBase)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, stale.ID, books[0].ID)
}
