// Package host supplies the per-call context the registry expects from its
// environment: an authenticated caller and a monotonic counter.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/kilupskalvis/dpp/internal/store"
)

const bucketHost = "host"

var keyCounter = []byte("counter")

// Counter hands out non-decreasing values, one per call.
type Counter interface {
	Next(ctx context.Context) (uint64, error)
}

// Sequencer is a Counter persisted in the registry store. Each Next returns
// the previous value plus one, surviving restarts.
type Sequencer struct {
	mu sync.Mutex
	st store.Store
}

// NewSequencer creates a sequencer over st.
func NewSequencer(st store.Store) *Sequencer {
	return &Sequencer{st: st}
}

// Current returns the last value handed out, 0 if none.
func (s *Sequencer) Current(ctx context.Context) (uint64, error) {
	data, err := s.st.Get(ctx, bucketHost, keyCounter)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	return n, nil
}

func (s *Sequencer) Next(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.Current(ctx)
	if err != nil {
		return 0, err
	}
	n++
	data, _ := json.Marshal(n)
	var b store.Batch
	b.Put(bucketHost, keyCounter, data)
	if err := s.st.Apply(ctx, &b); err != nil {
		return 0, fmt.Errorf("store counter: %w", err)
	}
	return n, nil
}

// Clock is a Counter based on Unix seconds. It never goes backwards even if
// the wall clock does.
type Clock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewClock creates a wall-clock counter.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Next(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(c.now().Unix())
	if n < c.last {
		n = c.last
	}
	c.last = n
	return n, nil
}

// NewCall builds the registry context for one call by caller.
func NewCall(ctx context.Context, c Counter, caller models.Address) (passport.Call, error) {
	n, err := c.Next(ctx)
	if err != nil {
		return passport.Call{}, err
	}
	return passport.Call{Caller: caller, Counter: n}, nil
}
