// Command import_books bulk-creates book listings from a JSON file.
//
// The file holds an array of listings:
//
//	[{"owner_email": "an@dainam.edu.vn", "title": "Giai tich 1", "author": "Nguyen Dinh Tri",
//	  "subject": "Math", "faculty": "IT", "condition": "GOOD", "sell_price": 50000, "borrow_days": 14}]
//
// Owners must already be registered. A listing with sell_price is offered for
// sale; one with borrow_days is offered for borrowing; it may be both.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"bookshare/config"
	"bookshare/market"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type listing struct {
	OwnerEmail string   `json:"owner_email"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Subject    string   `json:"subject"`
	Faculty    string   `json:"faculty"`
	Condition  string   `json:"condition"`
	SellPrice  *float64 `json:"sell_price"`
	BorrowDays *int     `json:"borrow_days"`
}

func main() {
	file := flag.String("file", "books.json", "JSON array of listings")
	dsn := flag.String("db", "", "database file or DSN (overrides BOOKSHARE_DB_DSN)")
	fresh := flag.Bool("fresh", false, "remove an existing sqlite database first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.DBDSN = *dsn
	}

	if *fresh && cfg.DBDriver == "sqlite3" {
		// Clean up any existing database files
		fmt.Println("Cleaning up existing database files...")
		for _, f := range []string{cfg.DBDSN, cfg.DBDSN + "-shm", cfg.DBDSN + "-wal"} {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				fmt.Printf("Warning: Could not remove %s: %v\n", f, err)
			}
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	manager, err := market.Open(cfg.DBDriver, cfg.DBDSN, market.WithLogger(log), market.WithEmailDomain(cfg.EmailDomain))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading listings: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Importing listings from %s...\n", *file)
	ok, failed, err := importListings(context.Background(), manager, f, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", ok)
	fmt.Printf("Errors: %d\n", failed)
}

// importListings creates one book per listing. A failing listing is reported
// to out and skipped; only an unreadable file is an error.
func importListings(ctx context.Context, m *market.Manager, r io.Reader, out io.Writer) (ok, failed int, err error) {
	var listings []listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return 0, 0, fmt.Errorf("decode listings: %w", err)
	}

	for _, l := range listings {
		fmt.Fprintf(out, "Importing: %s by %s... ", l.Title, l.Author)
		b, err := importOne(ctx, m, l)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %s)\n", b.ID)
		ok++
	}
	return ok, failed, nil
}

func importOne(ctx context.Context, m *market.Manager, l listing) (*market.Book, error) {
	cond := market.Condition(strings.ToUpper(l.Condition))
	if cond != "" && !cond.Valid() {
		return nil, fmt.Errorf("condition %q: %w", l.Condition, market.ErrInvalidInput)
	}
	owner, err := m.Users.GetByEmail(ctx, l.OwnerEmail)
	if err != nil {
		return nil, fmt.Errorf("owner %s: %w", l.OwnerEmail, err)
	}
	b, err := m.Books.CreateWithDetails(ctx, owner.ID, market.BookDetails{
		Title:   l.Title,
		Author:  l.Author,
		Subject: l.Subject,
		Faculty: l.Faculty,
	})
	if err != nil {
		return nil, err
	}
	if cond != "" {
		if b, err = m.Books.SetCondition(ctx, b.ID, owner.ID, cond); err != nil {
			return nil, err
		}
	}
	if l.SellPrice != nil {
		if b, err = m.Books.AddAvailableType(ctx, b.ID, market.ListSell, l.SellPrice, nil); err != nil {
			return nil, err
		}
	}
	if l.BorrowDays != nil {
		if b, err = m.Books.AddAvailableType(ctx, b.ID, market.ListBorrow, nil, l.BorrowDays); err != nil {
			return nil, err
		}
	}
	return b, nil
}
