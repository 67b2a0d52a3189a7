package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"library-circulation/library"
)

const dateLayout = "2006-01-02"

func parseDate(flag, s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a date like 2006-01-02: %w", flag, err)
	}
	return t, nil
}

// resolveBook finds a book by id, falling back to ISBN.
func resolveBook(ctx context.Context, mgr *library.LibraryManager, ref string) (*library.Book, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return mgr.Catalog.GetBook(ctx, id)
	}
	return mgr.Catalog.FindByISBN(ctx, ref)
}

func printBookTable(a *app, books []*library.Book) {
	a.printf("%-36s %-14s %-30s %-25s %-10s\n", "ID", "ISBN", "Title", "Author", "Available")
	a.printf("%s\n", strings.Repeat("-", 120))
	for _, b := range books {
		a.printf("%-36s %-14s %-30s %-25s %d/%d\n",
			b.ID, b.ISBN, truncateString(b.Title, 30), truncateString(b.Author, 25),
			b.AvailableCopies, b.TotalCopies)
	}
}

func printBook(a *app, b *library.Book) {
	a.printf("ID:          %s\n", b.ID)
	a.printf("ISBN:        %s\n", b.ISBN)
	a.printf("Title:       %s\n", b.Title)
	a.printf("Author:      %s\n", b.Author)
	if b.Publisher != "" {
		a.printf("Publisher:   %s\n", b.Publisher)
	}
	a.printf("Published:   %s\n", b.PublishedDate.Format(dateLayout))
	if b.Genre != "" {
		a.printf("Genre:       %s\n", b.Genre)
	}
	a.printf("Copies:      %d available of %d\n", b.AvailableCopies, b.TotalCopies)
	a.printf("Checkouts:   %d\n", b.CheckoutCount)
}

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage the catalog"}
	cmd.AddCommand(newBookAddCmd(a), newBookGetCmd(a), newBookSearchCmd(a), newBookUpdateCmd(a), newBookDeleteCmd(a))
	return cmd
}

func newBookAddCmd(a *app) *cobra.Command {
	var (
		in        library.BookInput
		published string
		available int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if in.PublishedDate, err = parseDate("published", published); err != nil {
				return err
			}
			if cmd.Flags().Changed("available") {
				in.AvailableCopies = &available
			}
			b, err := mgr.Catalog.CreateBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.emit(b, func() {
				a.printf("Book '%s' added with ID %s\n", b.Title, b.ID)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ISBN, "isbn", "", "10 or 13 digit ISBN")
	f.StringVar(&in.Title, "title", "", "title")
	f.StringVar(&in.Author, "author", "", "author")
	f.StringVar(&in.Publisher, "publisher", "", "publisher")
	f.StringVar(&published, "published", "", "publication date (YYYY-MM-DD)")
	f.StringVar(&in.Genre, "genre", "", "genre, e.g. "+strings.Join(library.SuggestedGenres[:3], ", "))
	f.StringVar(&in.Description, "description", "", "description")
	f.IntVar(&in.TotalCopies, "copies", 1, "total copies")
	f.IntVar(&available, "available", 0, "available copies (defaults to --copies)")
	_ = cmd.MarkFlagRequired("isbn")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("published")
	return cmd
}

func newBookGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|isbn>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			b, err := resolveBook(cmd.Context(), mgr, args[0])
			if err != nil {
				return err
			}
			return a.emit(b, func() { printBook(a, b) })
		},
	}
}

func newBookSearchCmd(a *app) *cobra.Command {
	var crit library.SearchCriteria
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search by title, author or ISBN",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				crit.Query = args[0]
			}
			books := []*library.Book{}
			for b, err := range mgr.Catalog.Search(cmd.Context(), crit) {
				if err != nil {
					return err
				}
				books = append(books, b)
			}
			return a.emit(books, func() {
				if len(books) == 0 {
					a.printf("No books found.\n")
					return
				}
				a.printf("Found %d book(s):\n", len(books))
				printBookTable(a, books)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&crit.Genre, "genre", "", "only this genre")
	f.StringVar(&crit.Author, "author", "", "only this author")
	f.BoolVar(&crit.AvailableOnly, "available", false, "only books with a copy on the shelf")
	f.IntVar(&crit.Limit, "limit", 0, "maximum results (0 for all)")
	return cmd
}

func newBookUpdateCmd(a *app) *cobra.Command {
	var (
		isbn, title, author, publisher, published, genre, description string
		total, available                                              int
	)
	cmd := &cobra.Command{
		Use:   "update <id|isbn>",
		Short: "Change a book; only the given flags are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			b, err := resolveBook(cmd.Context(), mgr, args[0])
			if err != nil {
				return err
			}

			var p library.BookPatch
			f := cmd.Flags()
			set := func(name string, src *string, dst **string) {
				if f.Changed(name) {
					*dst = src
				}
			}
			set("isbn", &isbn, &p.ISBN)
			set("title", &title, &p.Title)
			set("author", &author, &p.Author)
			set("publisher", &publisher, &p.Publisher)
			set("genre", &genre, &p.Genre)
			set("description", &description, &p.Description)
			if f.Changed("published") {
				d, err := parseDate("published", published)
				if err != nil {
					return err
				}
				p.PublishedDate = &d
			}
			if f.Changed("copies") {
				p.TotalCopies = &total
			}
			if f.Changed("available") {
				p.AvailableCopies = &available
			}

			updated, err := mgr.Catalog.UpdateBook(cmd.Context(), b.ID, p)
			if err != nil {
				return err
			}
			return a.emit(updated, func() { printBook(a, updated) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&isbn, "isbn", "", "ISBN")
	f.StringVar(&title, "title", "", "title")
	f.StringVar(&author, "author", "", "author")
	f.StringVar(&publisher, "publisher", "", "publisher")
	f.StringVar(&published, "published", "", "publication date (YYYY-MM-DD)")
	f.StringVar(&genre, "genre", "", "genre")
	f.StringVar(&description, "description", "", "description")
	f.IntVar(&total, "copies", 0, "total copies")
	f.IntVar(&available, "available", 0, "available copies")
	return cmd
}

func newBookDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|isbn>",
		Short: "Remove a book with no open checkouts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			b, err := resolveBook(cmd.Context(), mgr, args[0])
			if err != nil {
				return err
			}
			if err := mgr.Catalog.DeleteBook(cmd.Context(), b.ID); err != nil {
				return err
			}
			return a.emit(map[string]string{"deleted": b.ID.String()}, func() {
				a.printf("Book '%s' deleted\n", b.Title)
			})
		},
	}
}
