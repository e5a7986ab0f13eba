// Package passport implements the dataset passport registry: records, the
// version ledger, the ownership ledger and the subject index, guarded by the
// issuer and owner-or-approved authorization rules.
//
// Every write runs its reads and checks first and buffers its mutations;
// they reach the store in one atomic batch only when every check passed.
// Calls are serialized by a registry-wide lock.
package passport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/store"
)

// Notifier receives the events of successful writes. Delivery is fire and
// forget: the registry never waits on or inspects the outcome.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev models.Event)

func (f NotifierFunc) Notify(ctx context.Context, ev models.Event) { f(ctx, ev) }

// Registry is the passport state machine over a Store.
type Registry struct {
	mu       sync.RWMutex
	st       store.Store
	notifier Notifier
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry over st.
func New(st store.Store, opts ...Option) *Registry {
	r := &Registry{
		st:     st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) emit(ctx context.Context, events ...models.Event) {
	if r.notifier == nil {
		return
	}
	for _, ev := range events {
		r.notifier.Notify(ctx, ev)
	}
}

func (r *Registry) rejected(op string, call Call, err error) error {
	r.logger.Debug("call rejected", "op", op, "caller", call.Caller.Hex(), "code", Code(err), "error", err)
	return err
}

// read runs fn against a read-only view.
func (r *Registry) read(ctx context.Context, fn func(t *txn) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(newTxn(ctx, r.st))
}

// GetPassport returns the current record, or nil if the token was never registered.
func (r *Registry) GetPassport(ctx context.Context, id models.TokenID) (*models.PassportRecord, error) {
	var rec *models.PassportRecord
	err := r.read(ctx, func(t *txn) (err error) {
		rec, err = t.record(id)
		return err
	})
	return rec, err
}

// NextTokenID returns the id the next successful registration will receive.
func (r *Registry) NextTokenID(ctx context.Context) (models.TokenID, error) {
	var next models.TokenID
	err := r.read(ctx, func(t *txn) (err error) {
		next, err = t.nextTokenID()
		return err
	})
	return next, err
}

// OwnerOf returns the current holder, or nil for an unknown token.
func (r *Registry) OwnerOf(ctx context.Context, id models.TokenID) (*models.Address, error) {
	var owner *models.Address
	err := r.read(ctx, func(t *txn) (err error) {
		owner, err = t.owner(id)
		return err
	})
	return owner, err
}

// BalanceOf returns how many tokens holder currently holds.
func (r *Registry) BalanceOf(ctx context.Context, holder models.Address) (uint64, error) {
	var n uint64
	err := r.read(ctx, func(t *txn) (err error) {
		n, err = t.balance(holder)
		return err
	})
	return n, err
}

// GetApproved returns the single-token approval, or nil if none is set.
func (r *Registry) GetApproved(ctx context.Context, id models.TokenID) (*models.Address, error) {
	var a *models.Address
	err := r.read(ctx, func(t *txn) (err error) {
		a, err = t.approved(id)
		return err
	})
	return a, err
}

// IsApprovedForAll reports whether operator may act for every token of owner.
func (r *Registry) IsApprovedForAll(ctx context.Context, owner, operator models.Address) (bool, error) {
	var ok bool
	err := r.read(ctx, func(t *txn) (err error) {
		ok, err = t.isOperator(owner, operator)
		return err
	})
	return ok, err
}

// FindTokenBySubjectID returns the token last associated with a subject hash.
//
// The index is last-writer-wins: when an update changes or drops a token's
// subject hash the old entry is kept, so a stale hash can still resolve to
// the token that used to carry it.
func (r *Registry) FindTokenBySubjectID(ctx context.Context, subject models.Hash) (models.TokenID, bool, error) {
	var (
		id models.TokenID
		ok bool
	)
	err := r.read(ctx, func(t *txn) (err error) {
		ok, err = t.get(bucketSubjects, subjectKey(subject), &id)
		return err
	})
	return id, ok, err
}

// write runs fn under the registry lock. fn performs every check and buffers
// its mutations in t; they are committed only if fn returns no error, and the
// returned events are emitted only after a successful commit.
func (r *Registry) write(ctx context.Context, op string, call Call, fn func(t *txn) ([]models.Event, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := newTxn(ctx, r.st)
	events, err := fn(t)
	if err != nil {
		return r.rejected(op, call, err)
	}
	if err := t.commit(); err != nil {
		r.logger.Error("commit failed", "op", op, "error", err)
		return err
	}
	r.logger.Debug("call applied", "op", op, "caller", call.Caller.Hex(), "counter", call.Counter, "writes", t.batch.Len())
	r.emit(ctx, events...)
	return nil
}
