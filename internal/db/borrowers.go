package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

const borrowerColumns = "id, name, email, tier, created_at"

func scanBorrower(row interface{ Scan(...interface{}) error }) (*domain.Borrower, error) {
	var b domain.Borrower
	var createdAt string
	if err := row.Scan(&b.ID, &b.Name, &b.Email, &b.Tier, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if b.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBorrower fetches a borrower by id.
func GetBorrower(q Queryer, id int64) (*domain.Borrower, error) {
	row := q.QueryRow("SELECT "+borrowerColumns+" FROM borrowers WHERE id = ?", id)
	b, err := scanBorrower(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("borrower %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrower %d: %w", id, err)
	}
	return b, nil
}

// InsertBorrower creates a borrower and returns its id. apiKeyHash may be
// empty for borrowers without API access.
func InsertBorrower(q Queryer, b *domain.Borrower, apiKeyHash string) (int64, error) {
	if b.Tier == "" {
		b.Tier = domain.TierStandard
	}
	res, err := q.Exec(
		"INSERT INTO borrowers (name, email, tier, api_key_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		b.Name, b.Email, b.Tier, apiKeyHash, FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert borrower: %w", err)
	}
	return res.LastInsertId()
}

// ListBorrowerKeyHashes returns (id, api_key_hash) pairs for all borrowers
// that have API access. Used by the auth middleware to resolve API keys.
func ListBorrowerKeyHashes(q Queryer) (map[int64]string, error) {
	rows, err := q.Query("SELECT id, api_key_hash FROM borrowers WHERE api_key_hash IS NOT NULL AND api_key_hash != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to list borrower key hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[int64]string)
	for rows.Next() {
		var id int64
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan borrower key hash: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}
