package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/testutil"
)

func TestSimulatedDateRequiresStaff(t *testing.T) {
	ts := setupTestServer(t)
	_, memberKey := ts.createBorrowerWithKey(t, "member", domain.TierStandard)
	_, premiumKey := ts.createBorrowerWithKey(t, "vip", domain.TierPremium)

	for _, key := range []string{memberKey, premiumKey} {
		w := ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, key)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
}

func TestSimulatedDateLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	admin, adminKey := ts.createBorrowerWithKey(t, "admin", domain.TierAdmin)
	_ = admin

	// Not simulating initially.
	w := ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	decodeJSON(t, w, &status)
	assert.Equal(t, false, status["isSimulating"])

	// Seed an overdue-to-be checkout.
	reader, _ := ts.createBorrowerWithKey(t, "reader", domain.TierStandard)
	book := testutil.CreateBook(t, ts.repo, "Borrowed Time", domain.BookCheckedOut, nil)
	testutil.CreateCheckout(t, ts.repo, book, reader, apiTestBase, apiTestBase.AddDate(0, 0, 14))

	// Advance three weeks: the checkout goes overdue and one notification
	// is generated.
	w = ts.do(t, http.MethodPost, "/api/admin/simulated-date",
		map[string]string{"date": apiTestBase.AddDate(0, 0, 21).Format("2006-01-02")}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]interface{}
	decodeJSON(t, w, &result)
	assert.Equal(t, float64(1), result["notificationsGenerated"])

	w = ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &status)
	assert.Equal(t, true, status["isSimulating"])

	// Clearing removes the simulated notifications and restores statuses.
	w = ts.do(t, http.MethodDelete, "/api/admin/simulated-date", nil, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared map[string]interface{}
	decodeJSON(t, w, &cleared)
	assert.Equal(t, float64(1), cleared["notificationsDeleted"])

	w = ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, adminKey)
	decodeJSON(t, w, &status)
	assert.Equal(t, false, status["isSimulating"])
}

func TestSetSimulatedDateRejectsGarbage(t *testing.T) {
	ts := setupTestServer(t)
	_, adminKey := ts.createBorrowerWithKey(t, "admin", domain.TierAdmin)

	w := ts.do(t, http.MethodPost, "/api/admin/simulated-date",
		map[string]string{"date": "next tuesday"}, adminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetSimulatedDateNullResumesRealTime(t *testing.T) {
	ts := setupTestServer(t)
	_, adminKey := ts.createBorrowerWithKey(t, "admin", domain.TierAdmin)

	w := ts.do(t, http.MethodPost, "/api/admin/simulated-date",
		map[string]string{"date": apiTestBase.AddDate(0, 0, 7).Format("2006-01-02")}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	w = ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, adminKey)
	decodeJSON(t, w, &status)
	require.Equal(t, true, status["isSimulating"])

	// A null date resumes real time and reports the advance-shaped counts.
	w = ts.do(t, http.MethodPost, "/api/admin/simulated-date",
		map[string]interface{}{"date": nil}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]interface{}
	decodeJSON(t, w, &result)
	assert.Contains(t, result, "autoReturnsReverted")

	w = ts.do(t, http.MethodGet, "/api/admin/simulated-date", nil, adminKey)
	decodeJSON(t, w, &status)
	assert.Equal(t, false, status["isSimulating"])
}

func TestPatchCheckoutActions(t *testing.T) {
	ts := setupTestServer(t)
	_, librarianKey := ts.createBorrowerWithKey(t, "librarian", domain.TierLibrarian)
	reader, _ := ts.createBorrowerWithKey(t, "reader", domain.TierStandard)

	book := testutil.CreateBook(t, ts.repo, "Managed Loan", domain.BookCheckedOut, nil)
	checkout := testutil.CreateCheckout(t, ts.repo, book, reader, apiTestBase, apiTestBase.AddDate(0, 0, 14))
	path := "/api/admin/checkouts/" + itoa(checkout.ID)

	// Unknown action.
	w := ts.do(t, http.MethodPatch, path, map[string]interface{}{"action": "vanish"}, librarianKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Mark overdue.
	w = ts.do(t, http.MethodPatch, path, map[string]interface{}{"action": "mark_overdue"}, librarianKey)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := db.GetCheckout(ts.repo.DB, checkout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutOverdue, got.Status)

	// Extend ten days clears the flag and moves the due date.
	w = ts.do(t, http.MethodPatch, path,
		map[string]interface{}{"action": "extend", "extend_days": 10}, librarianKey)
	require.Equal(t, http.StatusOK, w.Code)
	got, err = db.GetCheckout(ts.repo.DB, checkout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutActive, got.Status)
	assert.Equal(t, checkout.DueDate.AddDate(0, 0, 10), got.DueDate)

	// Return.
	w = ts.do(t, http.MethodPatch, path, map[string]interface{}{"action": "return"}, librarianKey)
	require.Equal(t, http.StatusOK, w.Code)
	got, err = db.GetCheckout(ts.repo.DB, checkout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReturned, got.Status)

	// Returning again conflicts.
	w = ts.do(t, http.MethodPatch, path, map[string]interface{}{"action": "return"}, librarianKey)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAutoReturnsRoundTrip(t *testing.T) {
	ts := setupTestServer(t)
	_, adminKey := ts.createBorrowerWithKey(t, "admin", domain.TierAdmin)
	reader, _ := ts.createBorrowerWithKey(t, "reader", domain.TierStandard)

	book := testutil.CreateBook(t, ts.repo, "Scheduled", domain.BookCheckedOut, nil)
	checkout := testutil.CreateCheckout(t, ts.repo, book, reader, apiTestBase, apiTestBase.AddDate(0, 0, 14))

	w := ts.do(t, http.MethodPut, "/api/admin/auto-returns", map[string]interface{}{
		"auto_returns": []map[string]interface{}{{
			"checkout_id": checkout.ID,
			"book_id":     book.ID,
			"return_date": apiTestBase.AddDate(0, 0, 5).Format("2006-01-02T15:04:05Z07:00"),
		}},
	}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/admin/auto-returns", nil, adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var tuples []domain.AutoReturn
	decodeJSON(t, w, &tuples)
	require.Len(t, tuples, 1)
	assert.Equal(t, checkout.ID, tuples[0].CheckoutID)

	// A tuple naming the wrong book is rejected.
	w = ts.do(t, http.MethodPut, "/api/admin/auto-returns", map[string]interface{}{
		"auto_returns": []map[string]interface{}{{
			"checkout_id": checkout.ID,
			"book_id":     book.ID + 99,
			"return_date": apiTestBase.AddDate(0, 0, 5).Format("2006-01-02T15:04:05Z07:00"),
		}},
	}, adminKey)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminBookManagement(t *testing.T) {
	ts := setupTestServer(t)
	_, adminKey := ts.createBorrowerWithKey(t, "admin", domain.TierAdmin)

	w := ts.do(t, http.MethodPost, "/api/admin/books", map[string]string{
		"title":  "Brand New",
		"author": "A. Writer",
		"isbn":   "978-0000000000",
	}, adminKey)
	require.Equal(t, http.StatusCreated, w.Code)
	var book domain.Book
	decodeJSON(t, w, &book)
	assert.Equal(t, domain.BookAvailable, book.Status)

	// Deactivate, then reactivate.
	path := "/api/admin/books/" + itoa(book.ID)
	w = ts.do(t, http.MethodPatch, path, map[string]string{"status": "inactive"}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := db.GetBook(ts.repo.DB, book.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookInactive, got.Status)

	w = ts.do(t, http.MethodPatch, path, map[string]string{"status": "available"}, adminKey)
	require.Equal(t, http.StatusOK, w.Code)

	// Reactivating an already-available book conflicts; arbitrary statuses
	// are rejected.
	w = ts.do(t, http.MethodPatch, path, map[string]string{"status": "available"}, adminKey)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = ts.do(t, http.MethodPatch, path, map[string]string{"status": "checked_out"}, adminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
