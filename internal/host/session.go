package host

import (
	"context"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
)

// Session binds a registry to one caller identity and a counter, so each
// write gets its Call without the caller threading it through.
type Session struct {
	Registry *passport.Registry
	Counter  Counter
	Caller   models.Address
}

func (s *Session) call(ctx context.Context) (passport.Call, error) {
	return NewCall(ctx, s.Counter, s.Caller)
}

func (s *Session) RegisterPassport(ctx context.Context, in passport.Registration) (models.TokenID, error) {
	call, err := s.call(ctx)
	if err != nil {
		return 0, err
	}
	return s.Registry.Register(ctx, call, in)
}

func (s *Session) UpdateDataset(ctx context.Context, id models.TokenID, in passport.DatasetUpdate) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.UpdateDataset(ctx, call, id, in)
}

func (s *Session) RevokePassport(ctx context.Context, id models.TokenID, reason *string) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.RevokePassport(ctx, call, id, reason)
}

func (s *Session) Approve(ctx context.Context, to models.Address, id models.TokenID) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.Approve(ctx, call, to, id)
}

func (s *Session) SetApprovalForAll(ctx context.Context, operator models.Address, approved bool) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.SetApprovalForAll(ctx, call, operator, approved)
}

func (s *Session) Transfer(ctx context.Context, to models.Address, id models.TokenID) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.Transfer(ctx, call, to, id)
}

func (s *Session) TransferFrom(ctx context.Context, from, to models.Address, id models.TokenID) error {
	call, err := s.call(ctx)
	if err != nil {
		return err
	}
	return s.Registry.TransferFrom(ctx, call, from, to, id)
}

func (s *Session) GetPassport(ctx context.Context, id models.TokenID) (*models.PassportRecord, error) {
	return s.Registry.GetPassport(ctx, id)
}

func (s *Session) NextTokenID(ctx context.Context) (models.TokenID, error) {
	return s.Registry.NextTokenID(ctx)
}

func (s *Session) OwnerOf(ctx context.Context, id models.TokenID) (*models.Address, error) {
	return s.Registry.OwnerOf(ctx, id)
}

func (s *Session) BalanceOf(ctx context.Context, holder models.Address) (uint64, error) {
	return s.Registry.BalanceOf(ctx, holder)
}

func (s *Session) GetApproved(ctx context.Context, id models.TokenID) (*models.Address, error) {
	return s.Registry.GetApproved(ctx, id)
}

func (s *Session) IsApprovedForAll(ctx context.Context, owner, operator models.Address) (bool, error) {
	return s.Registry.IsApprovedForAll(ctx, owner, operator)
}

func (s *Session) GetVersion(ctx context.Context, id models.TokenID, version uint32) (*models.VersionEntry, error) {
	return s.Registry.GetVersion(ctx, id, version)
}

func (s *Session) GetVersionHistory(ctx context.Context, id models.TokenID) ([]models.VersionEntry, error) {
	return s.Registry.GetVersionHistory(ctx, id)
}

func (s *Session) GetRecentVersions(ctx context.Context, id models.TokenID, limit uint32) ([]models.VersionEntry, error) {
	return s.Registry.GetRecentVersions(ctx, id, limit)
}

func (s *Session) FindTokenBySubjectID(ctx context.Context, subject models.Hash) (models.TokenID, bool, error) {
	return s.Registry.FindTokenBySubjectID(ctx, subject)
}
