package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-circulation/library"
)

func printCheckoutTable(a *app, list []*library.Checkout) {
	now := time.Now().UTC()
	if a.mgr != nil {
		now = a.mgr.Checkouts.Now()
	}
	a.printf("%-36s %-15s %-30s %-12s %-12s %-8s\n", "ID", "Member", "Book", "Due", "Status", "Late fee")
	a.printf("%s\n", strings.Repeat("-", 120))
	for _, c := range list {
		status := "open"
		switch {
		case c.IsReturned:
			status = "returned"
		case library.IsOverdue(c, now):
			status = "overdue " + strconv.Itoa(library.DaysOverdue(c, now)) + "d"
		}
		a.printf("%-36s %-15s %-30s %-12s %-12s %s\n",
			c.ID, truncateString(c.MemberID, 15), truncateString(c.BookTitle, 30),
			c.DueDate.Format(dateLayout), status, c.LateFee)
	}
}

func printMember(a *app, m *library.MemberProfile) {
	a.printf("Member:      %s (%s)\n", m.UserID, m.Username)
	a.printf("Since:       %s\n", m.MembershipDate.Format(dateLayout))
	a.printf("Active:      %t\n", m.IsActive)
	if m.Phone != "" {
		a.printf("Phone:       %s\n", m.Phone)
	}
	if m.Address != "" {
		a.printf("Address:     %s\n", m.Address)
	}
	a.printf("Checkouts:   %d open, %d total\n", m.CurrentCheckouts, m.TotalCheckouts)
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage member profiles"}
	cmd.AddCommand(newMemberAddCmd(a), newMemberShowCmd(a), newMemberListCmd(a), newMemberUpdateCmd(a), newMemberDeleteCmd(a))
	return cmd
}

func newMemberAddCmd(a *app) *cobra.Command {
	var in library.MemberInput
	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Provision the profile of a user identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			in.UserID = args[0]
			if in.Username == "" {
				in.Username = args[0]
			}
			m, err := mgr.Members.EnsureProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.emit(m, func() { printMember(a, m) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Username, "username", "", "display name (defaults to the user id)")
	f.StringVar(&in.Phone, "phone", "", "phone number, e.g. +15551234567")
	f.StringVar(&in.Address, "address", "", "postal address")
	return cmd
}

// memberDetail is a profile with its open checkouts.
type memberDetail struct {
	*library.MemberProfile
	Open []*library.Checkout `json:"open_checkouts"`
}

func newMemberShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a profile and its open checkouts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			m, err := mgr.Members.GetProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			open, err := mgr.Checkouts.ListOpenFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(memberDetail{MemberProfile: m, Open: open}, func() {
				printMember(a, m)
				if len(open) > 0 {
					a.printf("\n")
					printCheckoutTable(a, open)
				}
			})
		},
	}
}

func newMemberListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			list, err := mgr.Members.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(list, func() {
				if len(list) == 0 {
					a.printf("No members registered.\n")
					return
				}
				a.printf("%-20s %-30s %-12s %-8s %-6s\n", "User ID", "Name", "Since", "Active", "Open")
				a.printf("%s\n", strings.Repeat("-", 80))
				for _, m := range list {
					a.printf("%-20s %-30s %-12s %-8t %d\n",
						truncateString(m.UserID, 20), truncateString(m.Username, 30),
						m.MembershipDate.Format(dateLayout), m.IsActive, m.CurrentCheckouts)
				}
			})
		},
	}
}

func newMemberUpdateCmd(a *app) *cobra.Command {
	var (
		phone, address string
		active         bool
	)
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Change phone, address or active status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			var p library.MemberPatch
			f := cmd.Flags()
			if f.Changed("phone") {
				p.Phone = &phone
			}
			if f.Changed("address") {
				p.Address = &address
			}
			if f.Changed("active") {
				p.IsActive = &active
			}
			m, err := mgr.Members.UpdateProfile(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return a.emit(m, func() { printMember(a, m) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&phone, "phone", "", "phone number")
	f.StringVar(&address, "address", "", "postal address")
	f.BoolVar(&active, "active", true, "membership active")
	return cmd
}

func newMemberDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Remove a profile with no open checkouts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if err := mgr.Members.DeleteProfile(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(map[string]string{"deleted": args[0]}, func() {
				a.printf("Member %s deleted\n", args[0])
			})
		},
	}
}
