package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/store"
)

// Buckets of the registry. Together with the next token id they are the
// complete persisted state.
const (
	bucketRecords   = "records"
	bucketVersions  = "versions"
	bucketOwners    = "owners"
	bucketApprovals = "approvals"
	bucketOperators = "operators"
	bucketBalances  = "balances"
	bucketSubjects  = "subjects"
	bucketMeta      = "meta"
)

var keyNextTokenID = []byte("next_token_id")

func tokenKey(id models.TokenID) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

func versionKey(id models.TokenID, version uint32) []byte {
	return []byte(fmt.Sprintf("%020d:%010d", id, version))
}

func operatorKey(owner, operator models.Address) []byte {
	return []byte(owner.Hex() + ":" + operator.Hex())
}

func addressKey(a models.Address) []byte {
	return []byte(a.Hex())
}

func subjectKey(h models.Hash) []byte {
	return []byte(h.Hex())
}

type pending struct {
	value   []byte
	deleted bool
}

// txn reads through to the store and buffers writes. Reads observe the
// buffered writes, so multi-step bookkeeping sees its own effects. Nothing
// reaches the store until commit.
type txn struct {
	ctx     context.Context
	st      store.Store
	batch   store.Batch
	pending map[string]pending
}

func newTxn(ctx context.Context, st store.Store) *txn {
	return &txn{ctx: ctx, st: st, pending: make(map[string]pending)}
}

func pendingKey(bucket string, key []byte) string {
	return bucket + "\x00" + string(key)
}

func (t *txn) get(bucket string, key []byte, v any) (bool, error) {
	if p, ok := t.pending[pendingKey(bucket, key)]; ok {
		if p.deleted {
			return false, nil
		}
		return true, json.Unmarshal(p.value, v)
	}
	data, err := t.st.Get(t.ctx, bucket, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", bucket, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", bucket, err)
	}
	return true, nil
}

func (t *txn) has(bucket string, key []byte) (bool, error) {
	if p, ok := t.pending[pendingKey(bucket, key)]; ok {
		return !p.deleted, nil
	}
	ok, err := t.st.Has(t.ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", bucket, err)
	}
	return ok, nil
}

func (t *txn) put(bucket string, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucket, err)
	}
	t.pending[pendingKey(bucket, key)] = pending{value: data}
	t.batch.Put(bucket, key, data)
	return nil
}

func (t *txn) del(bucket string, key []byte) {
	t.pending[pendingKey(bucket, key)] = pending{deleted: true}
	t.batch.Delete(bucket, key)
}

func (t *txn) commit() error {
	if err := t.st.Apply(t.ctx, &t.batch); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Typed accessors

func (t *txn) record(id models.TokenID) (*models.PassportRecord, error) {
	var rec models.PassportRecord
	ok, err := t.get(bucketRecords, tokenKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (t *txn) nextTokenID() (models.TokenID, error) {
	var next models.TokenID
	if _, err := t.get(bucketMeta, keyNextTokenID, &next); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *txn) owner(id models.TokenID) (*models.Address, error) {
	var a models.Address
	ok, err := t.get(bucketOwners, tokenKey(id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (t *txn) approved(id models.TokenID) (*models.Address, error) {
	var a models.Address
	ok, err := t.get(bucketApprovals, tokenKey(id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (t *txn) balance(holder models.Address) (uint64, error) {
	var n uint64
	if _, err := t.get(bucketBalances, addressKey(holder), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txn) isOperator(owner, operator models.Address) (bool, error) {
	return t.has(bucketOperators, operatorKey(owner, operator))
}

func (t *txn) version(id models.TokenID, v uint32) (*models.VersionEntry, error) {
	var e models.VersionEntry
	ok, err := t.get(bucketVersions, versionKey(id, v), &e)
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}

// removeToken detaches id from its holder and decrements the holder's balance.
func (t *txn) removeToken(from models.Address, id models.TokenID) error {
	ok, err := t.has(bucketOwners, tokenKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	n, err := t.balance(from)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: balance underflow for %s", ErrInvalidInput, from.Hex())
	}
	if err := t.put(bucketBalances, addressKey(from), n-1); err != nil {
		return err
	}
	t.del(bucketOwners, tokenKey(id))
	return nil
}

// addToken assigns id to a holder that must not already exist and
// increments the holder's balance.
func (t *txn) addToken(to models.Address, id models.TokenID) error {
	ok, err := t.has(bucketOwners, tokenKey(id))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: token %d already has a holder", ErrInvalidInput, id)
	}
	n, err := t.balance(to)
	if err != nil {
		return err
	}
	if n == math.MaxUint64 {
		return fmt.Errorf("%w: balance overflow for %s", ErrInvalidInput, to.Hex())
	}
	if err := t.put(bucketBalances, addressKey(to), n+1); err != nil {
		return err
	}
	return t.put(bucketOwners, tokenKey(id), to)
}
