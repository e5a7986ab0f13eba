// Package models defines the data structures shared across DPP: passport
// records, version entries and registry events.
package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID identifies a passport. Ids are assigned sequentially from 0.
type TokenID uint64

// Address is an account identity (issuer, holder, operator, caller).
type Address = common.Address

// Hash is a 32-byte digest (payload hash, subject id hash).
type Hash = common.Hash

// Status is the technical status of a passport record
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusSuspended, StatusRevoked, StatusArchived:
		return true
	}
	return false
}

// Granularity describes what a passport is about. It is fixed at registration.
type Granularity string

const (
	GranularityProductClass Granularity = "product_class"
	GranularityBatch        Granularity = "batch"
	GranularityItem         Granularity = "item"
)

// ParseGranularity accepts the canonical names plus the CamelCase forms
// used by issuers ("ProductClass", "Batch", "Item").
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "product_class", "ProductClass", "class":
		return GranularityProductClass, nil
	case "batch", "Batch":
		return GranularityBatch, nil
	case "item", "Item":
		return GranularityItem, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityProductClass, GranularityBatch, GranularityItem:
		return true
	}
	return false
}

// PassportRecord is the current anchored state of a token.
type PassportRecord struct {
	TokenID       TokenID     `json:"token_id"`
	Issuer        Address     `json:"issuer"`
	DatasetURI    string      `json:"dataset_uri"`
	PayloadHash   Hash        `json:"payload_hash"`
	DatasetType   string      `json:"dataset_type"`
	Version       uint32      `json:"version"`
	Status        Status      `json:"status"`
	CreatedAt     uint64      `json:"created_at"`
	UpdatedAt     uint64      `json:"updated_at"`
	Granularity   Granularity `json:"granularity"`
	SubjectIDHash *Hash       `json:"subject_id_hash,omitempty"`
}

// IsRevoked returns true once the record reached its terminal state
func (r *PassportRecord) IsRevoked() bool {
	return r.Status == StatusRevoked
}

// Dataset returns the content descriptor currently anchored by the record.
func (r *PassportRecord) Dataset() Dataset {
	return Dataset{URI: r.DatasetURI, PayloadHash: r.PayloadHash, Type: r.DatasetType}
}

// Dataset is the content descriptor supplied on registration and update.
type Dataset struct {
	URI         string `json:"dataset_uri"`
	PayloadHash Hash   `json:"payload_hash"`
	Type        string `json:"dataset_type"`
}

// VersionEntry is one immutable snapshot in a token's version history.
type VersionEntry struct {
	Version     uint32  `json:"version"`
	DatasetURI  string  `json:"dataset_uri"`
	PayloadHash Hash    `json:"payload_hash"`
	DatasetType string  `json:"dataset_type"`
	UpdatedAt   uint64  `json:"updated_at"`
	UpdatedBy   Address `json:"updated_by"`
}
