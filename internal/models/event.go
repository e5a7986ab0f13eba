package models

// EventType names a registry notification
type EventType string

const (
	EventPassportRegistered EventType = "passport.registered"
	EventPassportUpdated    EventType = "passport.updated"
	EventPassportRevoked    EventType = "passport.revoked"
	EventTransfer           EventType = "transfer"
	EventApproval           EventType = "approval"
	EventApprovalForAll     EventType = "approval_for_all"
)

// Event is a notification produced by a successful write. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type           EventType           `json:"type"`
	Registered     *PassportRegistered `json:"registered,omitempty"`
	Updated        *PassportUpdated    `json:"updated,omitempty"`
	Revoked        *PassportRevoked    `json:"revoked,omitempty"`
	Transfer       *Transfer           `json:"transfer,omitempty"`
	Approval       *Approval           `json:"approval,omitempty"`
	ApprovalForAll *ApprovalForAll     `json:"approval_for_all,omitempty"`
}

// TokenID returns the token the event refers to, if any.
func (e Event) TokenID() (TokenID, bool) {
	switch {
	case e.Registered != nil:
		return e.Registered.TokenID, true
	case e.Updated != nil:
		return e.Updated.TokenID, true
	case e.Revoked != nil:
		return e.Revoked.TokenID, true
	case e.Transfer != nil:
		return e.Transfer.TokenID, true
	case e.Approval != nil:
		return e.Approval.TokenID, true
	}
	return 0, false
}

type PassportRegistered struct {
	TokenID     TokenID `json:"token_id"`
	Issuer      Address `json:"issuer"`
	DatasetURI  string  `json:"dataset_uri"`
	PayloadHash Hash    `json:"payload_hash"`
	DatasetType string  `json:"dataset_type"`
	Version     uint32  `json:"version"`
	CreatedAt   uint64  `json:"created_at"`
}

type PassportUpdated struct {
	TokenID     TokenID `json:"token_id"`
	DatasetURI  string  `json:"dataset_uri"`
	PayloadHash Hash    `json:"payload_hash"`
	DatasetType string  `json:"dataset_type"`
	Version     uint32  `json:"version"`
	UpdatedAt   uint64  `json:"updated_at"`
}

type PassportRevoked struct {
	TokenID   TokenID `json:"token_id"`
	Issuer    Address `json:"issuer"`
	Reason    *string `json:"reason,omitempty"`
	RevokedAt uint64  `json:"revoked_at"`
}

// Transfer has a nil From only when the token is minted.
type Transfer struct {
	From    *Address `json:"from,omitempty"`
	To      Address  `json:"to"`
	TokenID TokenID  `json:"token_id"`
}

type Approval struct {
	Owner    Address `json:"owner"`
	Approved Address `json:"approved"`
	TokenID  TokenID `json:"token_id"`
}

type ApprovalForAll struct {
	Owner    Address `json:"owner"`
	Operator Address `json:"operator"`
	Approved bool    `json:"approved"`
}
