package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEmpty(t *testing.T) {
	mgr, _ := newManager(t)

	s, err := mgr.Stats.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.TotalBooks)
	assert.Zero(t, s.TotalCopies)
	assert.NotNil(t, s.PopularBooks)
	assert.Empty(t, s.PopularBooks)
	assert.NotNil(t, s.RecentCheckouts)
}

func TestStats(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	dune := addBook(t, mgr, "1000000001", "Dune", 3)
	emma := addBook(t, mgr, "1000000002", "Emma", 2)
	addBook(t, mgr, "1000000003", "Ulysses", 1)
	addMember(t, mgr, "alice")
	addMember(t, mgr, "bob")
	addMember(t, mgr, "carol")
	inactive := false
	_, err := mgr.Members.UpdateProfile(ctx, "carol", MemberPatch{IsActive: &inactive})
	require.NoError(t, err)

	short := clock.Now().Add(24 * time.Hour)
	_, err = mgr.Checkouts.CreateCheckout(ctx, "alice", dune.ID, CheckoutOptions{DueDate: &short})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Checkouts.CreateCheckout(ctx, "bob", dune.ID, CheckoutOptions{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Checkouts.CreateCheckout(ctx, "alice", emma.ID, CheckoutOptions{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Checkouts.ReturnCheckout(ctx, "alice", emma.ID)
	require.NoError(t, err)
	clock.Advance(2 * 24 * time.Hour)

	s, err := mgr.Stats.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalBooks)
	assert.Equal(t, 6, s.TotalCopies)
	assert.Equal(t, 4, s.AvailableCopies)
	assert.Equal(t, 2, s.CheckedOutCopies)
	assert.Equal(t, 3, s.TotalMembers)
	assert.Equal(t, 2, s.ActiveMembers)
	assert.Equal(t, 3, s.TotalCheckouts)
	assert.Equal(t, 2, s.CurrentCheckouts)
	assert.Equal(t, 1, s.OverdueCheckouts)

	require.Len(t, s.PopularBooks, 3)
	assert.Equal(t, "Dune", s.PopularBooks[0].Title)
	assert.Equal(t, 2, s.PopularBooks[0].CheckoutCount)
	assert.Equal(t, "Emma", s.PopularBooks[1].Title)
	assert.Equal(t, "Ulysses", s.PopularBooks[2].Title)
	assert.Zero(t, s.PopularBooks[2].CheckoutCount)

	require.Len(t, s.RecentCheckouts, 3)
	assert.Equal(t, "Emma", s.RecentCheckouts[0].BookTitle)
	assert.True(t, s.RecentCheckouts[0].IsReturned)
	assert.Equal(t, "bob", s.RecentCheckouts[1].Username)
	assert.Equal(t, "alice", s.RecentCheckouts[2].MemberID)
}
