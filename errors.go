package msafe

import (
	"errors"
)

var (
	// ErrInvalidConfiguration is returned when a wallet cannot be created
	// with the given owners and threshold.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidArgument is returned for malformed amounts, recipients or senders.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized is returned when the caller is not an owner.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for an index or handle that does not exist.
	ErrNotFound = errors.New("not found")

	ErrAlreadyExecuted           = errors.New("transaction already executed")
	ErrAlreadyConfirmed          = errors.New("transaction already confirmed")
	ErrInsufficientConfirmations = errors.New("insufficient confirmations")

	// ErrSettlementFailed is returned when the settlement primitive did not
	// move the value. The wallet state is left untouched.
	ErrSettlementFailed = errors.New("settlement failed")
)

// ErrorKind returns the short name of the error kind wrapped by err, or
// "internal" for errors outside the wallet taxonomy.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}

	return "internal"
}

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExecuted, "already_executed"},
	{ErrAlreadyConfirmed, "already_confirmed"},
	{ErrInsufficientConfirmations, "insufficient_confirmations"},
	{ErrSettlementFailed, "settlement_failed"},
}
