package ledger

import "errors"

// Ledger errors. Every failed operation returns one of these (possibly
// wrapped) and leaves state untouched.
var (
	ErrNotOwner          = errors.New("you are not the owner of this account")
	ErrMathOverflow      = errors.New("math operation overflowed")
	ErrInsufficientStake = errors.New("insufficient staked amount")
	ErrInvalidAmount     = errors.New("amount must be greater than 0")
	ErrAlreadyExists     = errors.New("stake record already exists")
	ErrAddressMismatch   = errors.New("record address does not match owner derivation")
	ErrRecordNotFound    = errors.New("stake record not found")
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")

	ErrUnknownInstruction   = errors.New("unknown instruction")
	ErrMalformedInstruction = errors.New("malformed instruction")
	ErrMalformedRecord      = errors.New("malformed stake record")

	// Address derivation.
	ErrAddressOnCurve = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump   = errors.New("unable to find a viable derivation bump")
)

// Result codes reported in transaction outcomes. 0 is success; the
// numbering is part of the wire contract and must not be reordered.
const (
	CodeOK uint32 = iota
	CodeNotOwner
	CodeMathOverflow
	CodeInsufficientStake
	CodeInvalidAmount
	CodeAlreadyExists
	CodeAddressMismatch
	CodeRecordNotFound
	CodeInsufficientFunds
	CodeUnknownInstruction
	CodeMalformedInstruction
	CodeInternal
)

// Code maps an error returned by the ledger to its result code.
func Code(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, ErrMathOverflow):
		return CodeMathOverflow
	case errors.Is(err, ErrInsufficientStake):
		return CodeInsufficientStake
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrAddressMismatch):
		return CodeAddressMismatch
	case errors.Is(err, ErrRecordNotFound):
		return CodeRecordNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrUnknownInstruction):
		return CodeUnknownInstruction
	case errors.Is(err, ErrMalformedInstruction):
		return CodeMalformedInstruction
	default:
		return CodeInternal
	}
}
