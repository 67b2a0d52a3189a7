// Command import_books loads a CSV file of books into the catalog.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"library-circulation/config"
	"library-circulation/library"
)

var columns = []string{"isbn", "title", "author", "publisher", "published_date", "genre", "total_copies"}

func main() {
	var file, dbPath string
	cmd := &cobra.Command{
		Use:          "import_books",
		Short:        "Import books from a CSV file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Log, os.Stderr)
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			f, err := os.Open(file)
			if err != nil {
				return errors.Wrap(err, "open csv")
			}
			defer f.Close()

			manager, err := library.NewLibraryManager(cfg.Database.Path, library.Options{
				Database: library.DatabaseOptions{
					BusyTimeout:    cfg.Database.BusyTimeout,
					RetryAttempts:  cfg.Database.RetryAttempts,
					RetryBaseDelay: cfg.Database.RetryBaseDelay,
				},
				Logger: logger,
			})
			if err != nil {
				return errors.Wrap(err, "open database")
			}
			defer manager.Close()

			fmt.Printf("Importing books from %s...\n", file)
			res, err := importCSV(cmd.Context(), f, manager.Catalog, os.Stdout)
			if err != nil {
				return err
			}

			fmt.Printf("\nImport complete!\n")
			fmt.Printf("Successfully imported: %d books\n", res.imported)
			fmt.Printf("Errors: %d\n", res.failed)
			if len(res.books) > 0 {
				fmt.Println("\nImported books:")
				fmt.Printf("%-14s %-50s %-30s\n", "ISBN", "Title", "Author")
				fmt.Println(strings.Repeat("-", 95))
				for _, b := range res.books {
					fmt.Printf("%-14s %-50s %-30s\n", b.ISBN, truncateString(b.Title, 50), truncateString(b.Author, 30))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "books.csv", "CSV file with header "+strings.Join(columns, ","))
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (overrides database.path)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type importResult struct {
	imported int
	failed   int
	books    []*library.Book
}

// importCSV creates one book per row. A bad row is reported to report and
// counted; it does not stop the import. A missing column or a read failure aborts.
func importCSV(ctx context.Context, r io.Reader, catalog *library.CatalogStore, report io.Writer) (importResult, error) {
	var res importResult

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return res, errors.Wrap(err, "read header")
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range columns {
		if _, ok := index[col]; !ok {
			return res, errors.Errorf("header is missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return res, errors.Wrapf(err, "read line %d", line)
			}
			fmt.Fprintf(report, "line %d: ERROR - %v\n", line, err)
			res.failed++
			continue
		}
		field := func(name string) string {
			if i := index[name]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		in, err := rowInput(field)
		if err == nil {
			var b *library.Book
			if b, err = catalog.CreateBook(ctx, in); err == nil {
				fmt.Fprintf(report, "Importing: %s by %s... SUCCESS\n", b.Title, b.Author)
				res.imported++
				res.books = append(res.books, b)
				continue
			}
		}
		fmt.Fprintf(report, "line %d: ERROR - %v\n", line, err)
		res.failed++
	}
	return res, nil
}

func rowInput(field func(string) string) (library.BookInput, error) {
	in := library.BookInput{
		ISBN:      field("isbn"),
		Title:     field("title"),
		Author:    field("author"),
		Publisher: field("publisher"),
		Genre:     field("genre"),
	}
	published, err := time.ParseInLocation("2006-01-02", field("published_date"), time.UTC)
	if err != nil {
		return in, fmt.Errorf("published_date %q: want YYYY-MM-DD", field("published_date"))
	}
	in.PublishedDate = published

	in.TotalCopies = 1
	if s := field("total_copies"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return in, fmt.Errorf("total_copies %q: not a number", s)
		}
		in.TotalCopies = n
	}
	return in, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
