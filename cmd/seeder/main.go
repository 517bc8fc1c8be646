// Command seeder populates a Lendarr database with a demo catalog and one
// borrower per tier, printing the generated API keys. Run it against a
// fresh database before starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/lendarr/lendarr/internal/auth"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
)

func main() {
	dbPath := flag.String("db", "./config/lendarr.db", "Path to the Lendarr database")
	flag.Parse()

	repo, err := db.NewRepository(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	fmt.Println("Seeding database...")

	borrowers := []struct {
		name string
		tier domain.Tier
	}{
		{"Sam Standard", domain.TierStandard},
		{"Pat Premium", domain.TierPremium},
		{"Lee Librarian", domain.TierLibrarian},
		{"Alex Admin", domain.TierAdmin},
	}

	fmt.Println("\nBorrowers (save these API keys, they are not stored in plain text):")
	for _, b := range borrowers {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
		hash, err := auth.HashAPIKey(key)
		if err != nil {
			log.Fatalf("Failed to hash API key: %v", err)
		}

		borrower := &domain.Borrower{
			Name:  b.name,
			Email: fmt.Sprintf("%s@example.com", string(b.tier)),
			Tier:  b.tier,
		}
		id, err := db.InsertBorrower(repo.DB, borrower, hash)
		if err != nil {
			log.Printf("Failed to insert borrower %s: %v", b.name, err)
			continue
		}
		fmt.Printf("  [%d] %-14s %-10s key=%s\n", id, b.name, b.tier, key)
	}

	books := []domain.Book{
		{Title: "The Go Programming Language", Author: "Alan A. A. Donovan", ISBN: "978-0134190440"},
		{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", ISBN: "978-1449373320"},
		{Title: "The Pragmatic Programmer", Author: "David Thomas", ISBN: "978-0135957059"},
		{Title: "Structure and Interpretation of Computer Programs", Author: "Harold Abelson", ISBN: "978-0262510875"},
		{Title: "A Philosophy of Software Design", Author: "John Ousterhout", ISBN: "978-1732102200"},
		{Title: "Site Reliability Engineering", Author: "Betsy Beyer", ISBN: "978-1491929124"},
	}

	fmt.Println("\nCatalog:")
	for i := range books {
		books[i].Status = domain.BookAvailable
		id, err := db.InsertBook(repo.DB, &books[i])
		if err != nil {
			log.Printf("Failed to insert book %q: %v", books[i].Title, err)
			continue
		}
		fmt.Printf("  [%d] %s\n", id, books[i].Title)
	}

	if err := repo.GracefulClose(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: close failed: %v\n", err)
	}

	fmt.Println("\nSeeding complete.")
}
