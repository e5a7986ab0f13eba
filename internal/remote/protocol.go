// Package remote defines the protocol types and client for dpp-server communication.
package remote

import (
	"github.com/kilupskalvis/dpp/internal/models"
)

// RegisterRequest is the body of POST /api/v1/passports.
type RegisterRequest struct {
	DatasetURI    string             `json:"dataset_uri"`
	PayloadHash   models.Hash        `json:"payload_hash"`
	DatasetType   string             `json:"dataset_type"`
	Granularity   models.Granularity `json:"granularity"`
	SubjectIDHash *models.Hash       `json:"subject_id_hash,omitempty"`
}

// RegisterResponse carries the id of the new passport.
type RegisterResponse struct {
	TokenID models.TokenID `json:"token_id"`
}

// UpdateRequest is the body of PUT /api/v1/passports/{id}/dataset.
type UpdateRequest struct {
	DatasetURI    string       `json:"dataset_uri"`
	PayloadHash   models.Hash  `json:"payload_hash"`
	DatasetType   string       `json:"dataset_type"`
	SubjectIDHash *models.Hash `json:"subject_id_hash,omitempty"`
}

// RevokeRequest is the body of POST /api/v1/passports/{id}/revoke.
type RevokeRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// ApproveRequest is the body of POST /api/v1/passports/{id}/approve.
type ApproveRequest struct {
	To models.Address `json:"to"`
}

// TransferRequest is the body of the transfer endpoints. From is only read
// by transfer-from.
type TransferRequest struct {
	From *models.Address `json:"from,omitempty"`
	To   models.Address  `json:"to"`
}

// OperatorRequest is the body of PUT /api/v1/operators/{operator}.
type OperatorRequest struct {
	Approved bool `json:"approved"`
}

// NextTokenIDResponse reports the id the next registration will receive.
type NextTokenIDResponse struct {
	NextTokenID models.TokenID `json:"next_token_id"`
}

// OwnerResponse reports the current holder of a token.
type OwnerResponse struct {
	TokenID models.TokenID `json:"token_id"`
	Owner   models.Address `json:"owner"`
}

// ApprovedResponse reports the single-token approval; Approved is nil when none is set.
type ApprovedResponse struct {
	TokenID  models.TokenID  `json:"token_id"`
	Approved *models.Address `json:"approved"`
}

// BalanceResponse reports how many tokens an account holds.
type BalanceResponse struct {
	Holder  models.Address `json:"holder"`
	Balance uint64         `json:"balance"`
}

// OperatorResponse reports a blanket approval flag.
type OperatorResponse struct {
	Owner    models.Address `json:"owner"`
	Operator models.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

// SubjectResponse reports the token a subject hash resolves to.
type SubjectResponse struct {
	SubjectIDHash models.Hash    `json:"subject_id_hash"`
	TokenID       models.TokenID `json:"token_id"`
}

// VersionsResponse wraps a list of history entries.
type VersionsResponse struct {
	TokenID  models.TokenID        `json:"token_id"`
	Versions []models.VersionEntry `json:"versions"`
}

// TokenRequest is the body of POST /admin/tokens.
type TokenRequest struct {
	Subject models.Address `json:"subject"`
	TTL     string         `json:"ttl,omitempty"`
}

// TokenResponse carries a signed bearer token.
type TokenResponse struct {
	Token     string         `json:"token"`
	Subject   models.Address `json:"subject"`
	ExpiresAt string         `json:"expires_at"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
