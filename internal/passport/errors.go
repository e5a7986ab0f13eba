package passport

import "errors"

// Failure kinds. Each corresponds to exactly one rejected condition and
// every call that returns one has applied no mutation.
var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("caller is not the issuer")
	ErrNotOwner        = errors.New("from is not the current owner")
	ErrNotApproved     = errors.New("caller is not owner nor approved")
	ErrNotAllowed      = errors.New("operation not allowed")
	ErrPassportRevoked = errors.New("passport is revoked")
	ErrAlreadyRevoked  = errors.New("passport is already revoked")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrTokenNotFound, "token_not_found"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotOwner, "not_owner"},
	{ErrNotApproved, "not_approved"},
	{ErrNotAllowed, "not_allowed"},
	{ErrPassportRevoked, "passport_revoked"},
	{ErrAlreadyRevoked, "already_revoked"},
}

// Code returns the stable machine code for a failure kind, or "" if err is
// not one of them.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode maps a machine code back to its failure kind. It returns nil for
// unknown codes.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
