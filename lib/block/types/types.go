// Package types common blockchain types.
package types

import (
	"errors"
	"fmt"
)

// Account is a point-in-time view of the on-chain state of a stake key. Amounts are kept as decimal strings as
// returned by the indexer so that values above 2^53 keep their precision.
type Account struct {
	StakeAddress     string `json:"stake_address"`
	Active           bool   `json:"active"`
	ControlledAmount string `json:"controlled_amount"`
	RewardsSum       string `json:"rewards_sum"`
}

// Kind classifies a failed account lookup.
type Kind uint8

// Lookup error kinds.
const (
	KindUpstream Kind = iota + 1 // transport failure or non-success status
	KindParse                    // body could not be decoded into an Account
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindParse:
		return "parse"
	}

	return "unknown"
}

// Error codes. Use errors.Is against ErrUpstream or ErrParse to test the kind of a *LookupError.
var (
	ErrUpstream = errors.New("account lookup failed upstream")
	ErrParse    = errors.New("account lookup response could not be decoded")
)

// LookupError is returned by chain clients when an account lookup fails. Status is the HTTP status replied by the
// indexer, or 0 when no response was received. Body keeps (a prefix of) the raw response for diagnostics.
type LookupError struct {
	Kind     Kind
	StakeKey string
	Status   int
	Body     string
	Err      error
}

func (e *LookupError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error looking up %s (status %d): %v", e.Kind, e.StakeKey, e.Status, e.Err)
	}

	return fmt.Sprintf("%s error looking up %s: %v", e.Kind, e.StakeKey, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUpstream) and errors.Is(err, ErrParse) match on the error kind.
func (e *LookupError) Is(target error) bool {
	switch target { //nolint:errorlint // comparing against our own sentinels
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrParse:
		return e.Kind == KindParse
	}

	return false
}

// IsUnavailable reports whether err is an account lookup failure of any kind. Callers facing clients collapse both
// kinds into a single "upstream unavailable" outcome.
func IsUnavailable(err error) bool {
	var le *LookupError

	return errors.As(err, &le)
}
