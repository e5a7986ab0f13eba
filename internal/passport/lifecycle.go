package passport

import (
	"context"
	"math"

	"github.com/kilupskalvis/dpp/internal/models"
)

// Registration is the input of Register.
type Registration struct {
	Dataset       models.Dataset
	Granularity   models.Granularity
	SubjectIDHash *models.Hash
}

// DatasetUpdate is the input of UpdateDataset. Granularity is deliberately
// absent: it cannot change after registration.
type DatasetUpdate struct {
	Dataset       models.Dataset
	SubjectIDHash *models.Hash
}

func validDataset(d models.Dataset) error {
	if d.URI == "" || d.Type == "" {
		return ErrInvalidInput
	}
	return nil
}

// Register creates a passport owned and issued by the caller and returns its
// token id. Failed registrations do not consume an id.
func (r *Registry) Register(ctx context.Context, call Call, in Registration) (models.TokenID, error) {
	var id models.TokenID
	err := r.write(ctx, "register_passport", call, func(t *txn) ([]models.Event, error) {
		if err := validDataset(in.Dataset); err != nil {
			return nil, err
		}
		if !in.Granularity.Valid() {
			return nil, ErrInvalidInput
		}

		next, err := t.nextTokenID()
		if err != nil {
			return nil, err
		}
		if next == math.MaxUint64 {
			return nil, ErrInvalidInput
		}
		id = next

		rec := models.PassportRecord{
			TokenID:       id,
			Issuer:        call.Caller,
			DatasetURI:    in.Dataset.URI,
			PayloadHash:   in.Dataset.PayloadHash,
			DatasetType:   in.Dataset.Type,
			Version:       1,
			Status:        models.StatusActive,
			CreatedAt:     call.Counter,
			UpdatedAt:     call.Counter,
			Granularity:   in.Granularity,
			SubjectIDHash: in.SubjectIDHash,
		}
		if err := t.put(bucketRecords, tokenKey(id), rec); err != nil {
			return nil, err
		}
		if err := t.addToken(call.Caller, id); err != nil {
			return nil, err
		}
		if err := t.put(bucketMeta, keyNextTokenID, next+1); err != nil {
			return nil, err
		}
		if in.SubjectIDHash != nil {
			if err := t.put(bucketSubjects, subjectKey(*in.SubjectIDHash), id); err != nil {
				return nil, err
			}
		}
		entry := models.VersionEntry{
			Version:     1,
			DatasetURI:  in.Dataset.URI,
			PayloadHash: in.Dataset.PayloadHash,
			DatasetType: in.Dataset.Type,
			UpdatedAt:   call.Counter,
			UpdatedBy:   call.Caller,
		}
		if err := t.put(bucketVersions, versionKey(id, 1), entry); err != nil {
			return nil, err
		}

		return []models.Event{
			{Type: models.EventPassportRegistered, Registered: &models.PassportRegistered{
				TokenID:     id,
				Issuer:      call.Caller,
				DatasetURI:  in.Dataset.URI,
				PayloadHash: in.Dataset.PayloadHash,
				DatasetType: in.Dataset.Type,
				Version:     1,
				CreatedAt:   call.Counter,
			}},
			{Type: models.EventTransfer, Transfer: &models.Transfer{To: call.Caller, TokenID: id}},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateDataset replaces the anchored content of an issuer's passport and
// appends a new version.
func (r *Registry) UpdateDataset(ctx context.Context, call Call, id models.TokenID, in DatasetUpdate) error {
	return r.write(ctx, "update_dataset", call, func(t *txn) ([]models.Event, error) {
		rec, err := t.record(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrTokenNotFound
		}
		if rec.Issuer != call.Caller {
			return nil, ErrUnauthorized
		}
		if rec.IsRevoked() {
			return nil, ErrPassportRevoked
		}
		if err := validDataset(in.Dataset); err != nil {
			return nil, err
		}
		if rec.Version == math.MaxUint32 {
			return nil, ErrInvalidInput
		}

		rec.Version++
		rec.DatasetURI = in.Dataset.URI
		rec.PayloadHash = in.Dataset.PayloadHash
		rec.DatasetType = in.Dataset.Type
		rec.SubjectIDHash = in.SubjectIDHash
		rec.UpdatedAt = call.Counter

		// A previous subject hash stays in the index.
		if in.SubjectIDHash != nil {
			if err := t.put(bucketSubjects, subjectKey(*in.SubjectIDHash), id); err != nil {
				return nil, err
			}
		}
		if err := t.put(bucketRecords, tokenKey(id), rec); err != nil {
			return nil, err
		}
		entry := models.VersionEntry{
			Version:     rec.Version,
			DatasetURI:  rec.DatasetURI,
			PayloadHash: rec.PayloadHash,
			DatasetType: rec.DatasetType,
			UpdatedAt:   call.Counter,
			UpdatedBy:   call.Caller,
		}
		if err := t.put(bucketVersions, versionKey(id, rec.Version), entry); err != nil {
			return nil, err
		}

		return []models.Event{{Type: models.EventPassportUpdated, Updated: &models.PassportUpdated{
			TokenID:     id,
			DatasetURI:  rec.DatasetURI,
			PayloadHash: rec.PayloadHash,
			DatasetType: rec.DatasetType,
			Version:     rec.Version,
			UpdatedAt:   call.Counter,
		}}}, nil
	})
}

// RevokePassport moves an issuer's passport to its terminal Revoked state.
// The reason only travels with the event.
func (r *Registry) RevokePassport(ctx context.Context, call Call, id models.TokenID, reason *string) error {
	return r.write(ctx, "revoke_passport", call, func(t *txn) ([]models.Event, error) {
		rec, err := t.record(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrTokenNotFound
		}
		if rec.Issuer != call.Caller {
			return nil, ErrUnauthorized
		}
		if rec.IsRevoked() {
			return nil, ErrAlreadyRevoked
		}

		rec.Status = models.StatusRevoked
		rec.UpdatedAt = call.Counter
		if err := t.put(bucketRecords, tokenKey(id), rec); err != nil {
			return nil, err
		}

		return []models.Event{{Type: models.EventPassportRevoked, Revoked: &models.PassportRevoked{
			TokenID:   id,
			Issuer:    call.Caller,
			Reason:    reason,
			RevokedAt: call.Counter,
		}}}, nil
	})
}
