package passport

import (
	"context"
	"testing"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balances(t *testing.T, r *Registry, holders ...models.Address) []uint64 {
	t.Helper()
	out := make([]uint64, len(holders))
	for i, h := range holders {
		n, err := r.BalanceOf(context.Background(), h)
		require.NoError(t, err)
		out[i] = n
	}
	return out
}

func requireOwner(t *testing.T, r *Registry, id models.TokenID, want models.Address) {
	t.Helper()
	owner, err := r.OwnerOf(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, want, *owner)
}

func TestApprove_ThenTransferFrom(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	require.NoError(t, r.Approve(ctx, Call{Caller: alice, Counter: 2}, bob, id))
	approved, err := r.GetApproved(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, bob, *approved)

	require.NoError(t, r.TransferFrom(ctx, Call{Caller: bob, Counter: 3}, alice, carol, id))
	requireOwner(t, r, id, carol)
	assert.Equal(t, []uint64{0, 1}, balances(t, r, alice, carol))

	approved, err = r.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, approved)

	// The cleared approval no longer authorizes bob
	err = r.TransferFrom(ctx, Call{Caller: bob, Counter: 4}, carol, bob, id)
	assert.ErrorIs(t, err, ErrNotApproved)

	got := events.take()
	require.Len(t, got, 2)
	assert.Equal(t, &models.Approval{Owner: alice, Approved: bob, TokenID: id}, got[0].Approval)
	require.NotNil(t, got[1].Transfer)
	assert.Equal(t, alice, *got[1].Transfer.From)
	assert.Equal(t, carol, got[1].Transfer.To)
}

func TestApprove_Rejections(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	err := r.Approve(ctx, Call{Caller: alice}, bob, 42)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	err = r.Approve(ctx, Call{Caller: alice}, alice, id)
	assert.ErrorIs(t, err, ErrNotAllowed)

	err = r.Approve(ctx, Call{Caller: bob}, carol, id)
	assert.ErrorIs(t, err, ErrNotApproved)

	// A single-token approval does not let the approved identity re-approve
	require.NoError(t, r.Approve(ctx, Call{Caller: alice}, bob, id))
	err = r.Approve(ctx, Call{Caller: bob}, carol, id)
	assert.ErrorIs(t, err, ErrNotApproved)

	approved, err := r.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, *approved)
	assert.Len(t, events.take(), 1)
}

func TestApprove_ByOperatorOverwrites(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)

	require.NoError(t, r.Approve(ctx, Call{Caller: alice}, bob, id))
	require.NoError(t, r.SetApprovalForAll(ctx, Call{Caller: alice}, carol, true))
	require.NoError(t, r.Approve(ctx, Call{Caller: carol}, dave, id))

	approved, err := r.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dave, *approved)
}

func TestSetApprovalForAll(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()

	err := r.SetApprovalForAll(ctx, Call{Caller: alice}, alice, true)
	assert.ErrorIs(t, err, ErrNotAllowed)

	require.NoError(t, r.SetApprovalForAll(ctx, Call{Caller: alice}, bob, true))
	ok, err := r.IsApprovedForAll(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	// Direction matters
	ok, err = r.IsApprovedForAll(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetApprovalForAll(ctx, Call{Caller: alice}, bob, false))
	ok, err = r.IsApprovedForAll(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an absent flag still notifies
	require.NoError(t, r.SetApprovalForAll(ctx, Call{Caller: alice}, bob, false))

	got := events.take()
	require.Len(t, got, 3)
	assert.Equal(t, &models.ApprovalForAll{Owner: alice, Operator: bob, Approved: true}, got[0].ApprovalForAll)
	assert.False(t, got[2].ApprovalForAll.Approved)
}

func TestTransfer_ByHolderAndOperator(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	a := register(t, r, alice, 1)
	b := register(t, r, alice, 2)
	assert.Equal(t, []uint64{2, 0}, balances(t, r, alice, bob))

	require.NoError(t, r.Transfer(ctx, Call{Caller: alice}, bob, a))
	requireOwner(t, r, a, bob)
	assert.Equal(t, []uint64{1, 1}, balances(t, r, alice, bob))

	require.NoError(t, r.SetApprovalForAll(ctx, Call{Caller: alice}, carol, true))
	require.NoError(t, r.TransferFrom(ctx, Call{Caller: carol}, alice, dave, b))
	requireOwner(t, r, b, dave)
	assert.Equal(t, []uint64{0, 1, 0, 1}, balances(t, r, alice, bob, carol, dave))

	// Operator rights follow the holder, not the issuer
	err := r.TransferFrom(ctx, Call{Caller: carol}, dave, alice, b)
	assert.ErrorIs(t, err, ErrNotApproved)

	rec, err := r.GetPassport(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, alice, rec.Issuer)
}

func TestTransfer_Rejections(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	err := r.Transfer(ctx, Call{Caller: alice}, bob, 9)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	err = r.Transfer(ctx, Call{Caller: bob}, carol, id)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = r.TransferFrom(ctx, Call{Caller: alice}, bob, carol, id)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = r.TransferFrom(ctx, Call{Caller: bob}, alice, bob, id)
	assert.ErrorIs(t, err, ErrNotApproved)

	requireOwner(t, r, id, alice)
	assert.Equal(t, []uint64{1, 0, 0}, balances(t, r, alice, bob, carol))
	assert.Empty(t, events.take())
}

func TestTransfer_ToSelfKeepsBalance(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	require.NoError(t, r.Approve(ctx, Call{Caller: alice}, bob, id))

	require.NoError(t, r.Transfer(ctx, Call{Caller: alice}, alice, id))
	requireOwner(t, r, id, alice)
	assert.Equal(t, []uint64{1}, balances(t, r, alice))

	approved, err := r.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, approved)
}

func TestBalances_SumEqualsTokenCount(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	holders := []models.Address{alice, bob, carol, dave}

	var ids []models.TokenID
	for i := 0; i < 8; i++ {
		ids = append(ids, register(t, r, holders[i%2], uint64(i)))
	}
	for i, id := range ids {
		owner, err := r.OwnerOf(ctx, id)
		require.NoError(t, err)
		to := holders[(i+1)%len(holders)]
		require.NoError(t, r.Transfer(ctx, Call{Caller: *owner}, to, id))
	}

	var sum uint64
	counts := map[models.Address]uint64{}
	for _, id := range ids {
		owner, err := r.OwnerOf(ctx, id)
		require.NoError(t, err)
		counts[*owner]++
	}
	for _, h := range holders {
		n, err := r.BalanceOf(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, counts[h], n, h.Hex())
		sum += n
	}
	next, err := r.NextTokenID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(next), sum)
}

func TestTransferFrom_ForeignStateUntouchedOnFailure(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	require.NoError(t, r.Approve(ctx, Call{Caller: alice}, bob, id))

	// from mismatch fails before the approval is cleared
	err := r.TransferFrom(ctx, Call{Caller: bob}, carol, dave, id)
	assert.ErrorIs(t, err, ErrNotOwner)

	approved, err := r.GetApproved(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, bob, *approved)
}
