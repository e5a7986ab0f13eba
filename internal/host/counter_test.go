package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilupskalvis/dpp/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dpp.db")

	st, err := store.NewBoltStore(path)
	require.NoError(t, err)
	seq := NewSequencer(st)

	cur, err := seq.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, cur)

	for want := uint64(1); want <= 3; want++ {
		n, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	require.NoError(t, st.Close())

	st, err = store.NewBoltStore(path)
	require.NoError(t, err)
	defer st.Close()

	n, err := NewSequencer(st).Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestClock_NeverDecreases(t *testing.T) {
	ctx := context.Background()
	times := []time.Time{time.Unix(100, 0), time.Unix(90, 0), time.Unix(120, 0)}
	i := 0
	c := &Clock{now: func() time.Time {
		tm := times[i]
		i++
		return tm
	}}

	var got []uint64
	for range times {
		n, err := c.Next(ctx)
		require.NoError(t, err)
		got = append(got, n)
	}
	assert.Equal(t, []uint64{100, 100, 120}, got)
}

func TestNewCall(t *testing.T) {
	ctx := context.Background()
	caller := common.HexToAddress("0x01")
	seq := NewSequencer(store.NewMemoryStore())

	call, err := NewCall(ctx, seq, caller)
	require.NoError(t, err)
	assert.Equal(t, caller, call.Caller)
	assert.Equal(t, uint64(1), call.Counter)
}
