package passport

import (
	"context"

	"github.com/kilupskalvis/dpp/internal/models"
)

// Approve lets `to` transfer a single token. The caller must be the holder or
// one of the holder's operators. Any previous approval is replaced.
func (r *Registry) Approve(ctx context.Context, call Call, to models.Address, id models.TokenID) error {
	return r.write(ctx, "approve", call, func(t *txn) ([]models.Event, error) {
		owner, err := t.owner(id)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, ErrTokenNotFound
		}
		if to == *owner {
			return nil, ErrNotAllowed
		}
		if call.Caller != *owner {
			op, err := t.isOperator(*owner, call.Caller)
			if err != nil {
				return nil, err
			}
			if !op {
				return nil, ErrNotApproved
			}
		}

		if err := t.put(bucketApprovals, tokenKey(id), to); err != nil {
			return nil, err
		}
		return []models.Event{{Type: models.EventApproval, Approval: &models.Approval{
			Owner:    *owner,
			Approved: to,
			TokenID:  id,
		}}}, nil
	})
}

// SetApprovalForAll grants or clears operator rights over all of the
// caller's tokens. The event is emitted even when nothing changed.
func (r *Registry) SetApprovalForAll(ctx context.Context, call Call, operator models.Address, approved bool) error {
	return r.write(ctx, "set_approval_for_all", call, func(t *txn) ([]models.Event, error) {
		if operator == call.Caller {
			return nil, ErrNotAllowed
		}
		key := operatorKey(call.Caller, operator)
		if approved {
			if err := t.put(bucketOperators, key, true); err != nil {
				return nil, err
			}
		} else {
			t.del(bucketOperators, key)
		}
		return []models.Event{{Type: models.EventApprovalForAll, ApprovalForAll: &models.ApprovalForAll{
			Owner:    call.Caller,
			Operator: operator,
			Approved: approved,
		}}}, nil
	})
}

// Transfer moves a token held by the caller to `to`.
func (r *Registry) Transfer(ctx context.Context, call Call, to models.Address, id models.TokenID) error {
	return r.write(ctx, "transfer", call, func(t *txn) ([]models.Event, error) {
		return transferFrom(t, call, call.Caller, to, id)
	})
}

// TransferFrom moves a token from its holder to `to` on behalf of the caller.
func (r *Registry) TransferFrom(ctx context.Context, call Call, from, to models.Address, id models.TokenID) error {
	return r.write(ctx, "transfer_from", call, func(t *txn) ([]models.Event, error) {
		return transferFrom(t, call, from, to, id)
	})
}

func transferFrom(t *txn, call Call, from, to models.Address, id models.TokenID) ([]models.Event, error) {
	rec, err := t.record(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTokenNotFound
	}
	if rec.IsRevoked() {
		return nil, ErrPassportRevoked
	}
	owner, err := t.owner(id)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrTokenNotFound
	}
	if *owner != from {
		return nil, ErrNotOwner
	}
	ok, err := approvedOrOwner(t, call.Caller, id, *owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotApproved
	}

	t.del(bucketApprovals, tokenKey(id))
	if err := t.removeToken(from, id); err != nil {
		return nil, err
	}
	if err := t.addToken(to, id); err != nil {
		return nil, err
	}

	return []models.Event{{Type: models.EventTransfer, Transfer: &models.Transfer{
		From:    &from,
		To:      to,
		TokenID: id,
	}}}, nil
}

func approvedOrOwner(t *txn, caller models.Address, id models.TokenID, owner models.Address) (bool, error) {
	if caller == owner {
		return true, nil
	}
	approved, err := t.approved(id)
	if err != nil {
		return false, err
	}
	if approved != nil && *approved == caller {
		return true, nil
	}
	return t.isOperator(owner, caller)
}
