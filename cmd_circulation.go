package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"library-circulation/api"
	"library-circulation/library"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var member, book, due, notes string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Lend a copy of a book to a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			b, err := resolveBook(cmd.Context(), mgr, book)
			if err != nil {
				return err
			}
			opts := library.CheckoutOptions{Notes: notes}
			if due != "" {
				d, err := parseDate("due", due)
				if err != nil {
					return err
				}
				opts.DueDate = &d
			}
			co, err := mgr.Checkouts.CreateCheckout(cmd.Context(), member, b.ID, opts)
			if err != nil {
				return err
			}
			return a.emit(co, func() {
				a.printf("Book '%s' checked out to %s, due %s\n", b.Title, member, co.DueDate.Format(dateLayout))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&member, "member", "", "member user id")
	f.StringVar(&book, "book", "", "book id or ISBN")
	f.StringVar(&due, "due", "", "due date (YYYY-MM-DD), defaults to the loan period")
	f.StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	var member, book string
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return a member's copy of a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			b, err := resolveBook(cmd.Context(), mgr, book)
			if err != nil {
				return err
			}
			co, err := mgr.Checkouts.ReturnCheckout(cmd.Context(), member, b.ID)
			if err != nil {
				return err
			}
			return a.emit(co, func() {
				a.printf("Book '%s' returned by %s\n", b.Title, member)
				if co.LateFee > 0 {
					a.printf("Late fee: %s\n", co.LateFee)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&member, "member", "", "member user id")
	f.StringVar(&book, "book", "", "book id or ISBN")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func newOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open checkouts past due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			list, err := mgr.Checkouts.ListOverdue(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(list, func() {
				if len(list) == 0 {
					a.printf("No overdue checkouts.\n")
					return
				}
				printCheckoutTable(a, list)
			})
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			s, err := mgr.Stats.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(s, func() {
				a.printf("Books:       %d titles, %d copies (%d available, %d checked out)\n",
					s.TotalBooks, s.TotalCopies, s.AvailableCopies, s.CheckedOutCopies)
				a.printf("Members:     %d (%d active)\n", s.TotalMembers, s.ActiveMembers)
				a.printf("Checkouts:   %d total, %d open, %d overdue\n",
					s.TotalCheckouts, s.CurrentCheckouts, s.OverdueCheckouts)
				if len(s.PopularBooks) > 0 {
					a.printf("\nMost popular:\n")
					for i, p := range s.PopularBooks {
						a.printf("%2d. %-40s %-25s %d\n", i+1, truncateString(p.Title, 40), truncateString(p.Author, 25), p.CheckoutCount)
					}
				}
			})
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if a.cfg.HTTP.AdminKeyHash == "" {
				a.logger.Warn("http.admin_key_hash is not set; admin routes will refuse every request")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.NewServer(mgr, a.cfg.HTTP, a.logger).Run(ctx)
		},
	}
}

func newHashKeyCmd(a *app) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Print the bcrypt hash of an admin key for http.admin_key_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readSecret("Admin key: ")
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			if key == "" {
				return fmt.Errorf("admin key must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			fmt.Fprintln(a.out, string(hash))
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
