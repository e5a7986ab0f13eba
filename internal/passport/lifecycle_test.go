package passport

import (
	"context"
	"fmt"
	"testing"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(uri string, h byte) DatasetUpdate {
	return DatasetUpdate{Dataset: models.Dataset{URI: uri, PayloadHash: hashOf(h), Type: "application/vc+jwt"}}
}

func TestUpdateDataset_VersionsAndHistory(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	for i := 1; i <= 4; i++ {
		err := r.UpdateDataset(ctx, Call{Caller: alice, Counter: uint64(10 + i)}, id, update(fmt.Sprintf("ipfs://v%d", i+1), byte(i)))
		require.NoError(t, err)
	}

	rec, err := r.GetPassport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), rec.Version)
	assert.Equal(t, "ipfs://v5", rec.DatasetURI)
	assert.Equal(t, hashOf(4), rec.PayloadHash)
	assert.Equal(t, uint64(1), rec.CreatedAt)
	assert.Equal(t, uint64(14), rec.UpdatedAt)
	assert.Equal(t, models.GranularityBatch, rec.Granularity)
	assert.Equal(t, alice, rec.Issuer)

	history, err := r.GetVersionHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "ipfs://cid", history[0].DatasetURI)
	for i, e := range history {
		assert.Equal(t, uint32(i+1), e.Version)
		assert.Equal(t, alice, e.UpdatedBy)
	}
	assert.Equal(t, "ipfs://v3", history[2].DatasetURI)
	assert.Equal(t, hashOf(2), history[2].PayloadHash)
	assert.Equal(t, uint64(12), history[2].UpdatedAt)

	got := events.take()
	require.Len(t, got, 4)
	assert.Equal(t, models.EventPassportUpdated, got[3].Type)
	assert.Equal(t, uint32(5), got[3].Updated.Version)
	assert.Equal(t, uint64(14), got[3].Updated.UpdatedAt)
}

func TestUpdateDataset_Rejections(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	before, err := r.GetPassport(ctx, id)
	require.NoError(t, err)

	tests := []struct {
		name   string
		caller models.Address
		id     models.TokenID
		in     DatasetUpdate
		want   error
	}{
		{"unknown token", alice, 99, update("ipfs://x", 1), ErrTokenNotFound},
		{"not issuer", bob, id, update("ipfs://x", 1), ErrUnauthorized},
		{"empty uri", alice, id, update("", 1), ErrInvalidInput},
		{"empty type", alice, id, DatasetUpdate{Dataset: models.Dataset{URI: "ipfs://x"}}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.UpdateDataset(ctx, Call{Caller: tt.caller, Counter: 5}, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.want)

			after, err := r.GetPassport(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	history, err := r.GetVersionHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Empty(t, events.take())
}

func TestUpdateDataset_IssuerKeepsAuthorityAfterTransfer(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)

	require.NoError(t, r.Transfer(ctx, Call{Caller: alice, Counter: 2}, bob, id))

	// The new holder cannot touch content
	err := r.UpdateDataset(ctx, Call{Caller: bob, Counter: 3}, id, update("ipfs://bob", 1))
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = r.RevokePassport(ctx, Call{Caller: bob, Counter: 3}, id, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, r.UpdateDataset(ctx, Call{Caller: alice, Counter: 4}, id, update("ipfs://alice", 2)))
	history, err := r.GetVersionHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, alice, history[1].UpdatedBy)
}

func TestUpdateDataset_SubjectIndexIsLastWriterWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	first, second := hashOf(0xa1), hashOf(0xb2)

	in := sampleRegistration()
	in.SubjectIDHash = &first
	id, err := r.Register(ctx, Call{Caller: alice, Counter: 1}, in)
	require.NoError(t, err)

	u := update("ipfs://v2", 2)
	u.SubjectIDHash = &second
	require.NoError(t, r.UpdateDataset(ctx, Call{Caller: alice, Counter: 2}, id, u))

	got, ok, err := r.FindTokenBySubjectID(ctx, second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	// The stale entry is retained
	got, ok, err = r.FindTokenBySubjectID(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	// Clearing the subject on the record leaves the index untouched
	require.NoError(t, r.UpdateDataset(ctx, Call{Caller: alice, Counter: 3}, id, update("ipfs://v3", 3)))
	rec, err := r.GetPassport(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec.SubjectIDHash)
	_, ok, err = r.FindTokenBySubjectID(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)

	// A later token claiming the same subject wins
	in.SubjectIDHash = &second
	other, err := r.Register(ctx, Call{Caller: bob, Counter: 4}, in)
	require.NoError(t, err)
	got, _, err = r.FindTokenBySubjectID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, other, got)
}

func TestRevokePassport(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()
	id := register(t, r, alice, 1)
	events.take()

	err := r.RevokePassport(ctx, Call{Caller: bob, Counter: 2}, id, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = r.RevokePassport(ctx, Call{Caller: alice, Counter: 2}, 5, nil)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	reason := "superseded by recall notice"
	require.NoError(t, r.RevokePassport(ctx, Call{Caller: alice, Counter: 7}, id, &reason))

	rec, err := r.GetPassport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, rec.Status)
	assert.Equal(t, uint64(7), rec.UpdatedAt)
	assert.Equal(t, uint64(1), rec.CreatedAt)
	assert.Equal(t, uint32(1), rec.Version)

	got := events.take()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Revoked)
	assert.Equal(t, alice, got[0].Revoked.Issuer)
	assert.Equal(t, &reason, got[0].Revoked.Reason)
	assert.Equal(t, uint64(7), got[0].Revoked.RevokedAt)

	err = r.RevokePassport(ctx, Call{Caller: alice, Counter: 8}, id, nil)
	assert.ErrorIs(t, err, ErrAlreadyRevoked)

	err = r.UpdateDataset(ctx, Call{Caller: alice, Counter: 8}, id, update("ipfs://x", 1))
	assert.ErrorIs(t, err, ErrPassportRevoked)
	err = r.Transfer(ctx, Call{Caller: alice, Counter: 8}, bob, id)
	assert.ErrorIs(t, err, ErrPassportRevoked)
	err = r.TransferFrom(ctx, Call{Caller: alice, Counter: 8}, alice, bob, id)
	assert.ErrorIs(t, err, ErrPassportRevoked)
	assert.Empty(t, events.take())
}
