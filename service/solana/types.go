package solana

import (
	"errors"
)

// Sentinel errors returned by the builder and verifier. Callers match with
// errors.Is to map them onto HTTP responses.
var (
	// ErrInvalidAmount is returned when a transfer amount is zero or negative.
	// The builder checks this before making any RPC calls.
	ErrInvalidAmount = errors.New("transfer amount must be positive")

	// ErrInvalidAddress is returned when an address fails base58 decoding or
	// is not a valid ed25519 curve point.
	ErrInvalidAddress = errors.New("invalid solana address")

	// ErrInvalidSignature is returned when a transaction signature string
	// cannot be decoded.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrUpstreamUnavailable is returned when the RPC endpoint cannot be
	// reached or keeps failing within the retry budget.
	ErrUpstreamUnavailable = errors.New("solana rpc unavailable")
)

// UnsignedTransaction is a serialized transfer transaction awaiting the
// sender's signature on the client side.
type UnsignedTransaction struct {
	Base64               string
	Blockhash            string
	LastValidBlockHeight uint64
}

// Outcome classifies the result of verifying a submitted signature.
type Outcome string

const (
	// OutcomeConfirmed means the transaction reached finality and its
	// transfer matches the expected sender, recipient, and amount.
	OutcomeConfirmed Outcome = "confirmed"

	// OutcomeMismatch means the transaction reached finality but its
	// transfer does not match expectations. Terminal; never retried.
	OutcomeMismatch Outcome = "mismatch"

	// OutcomeNotFound means the signature was never observed on chain
	// within the retry budget. Terminal.
	OutcomeNotFound Outcome = "not_found"

	// OutcomePending means the signature was observed but had not reached
	// finality when the budget ran out. The caller may verify again later.
	OutcomePending Outcome = "pending"
)

// Verdict is the verifier's judgement on a submitted signature.
type Verdict struct {
	Signature string
	Outcome   Outcome
	Reason    string // human-readable detail for mismatch/not_found/pending
	Slot      uint64 // slot the transaction landed in, 0 if never observed

	// Observed transfer details, populated when the transaction was decoded.
	Sender    string
	Recipient string
	Lamports  uint64
}

// TransferDetails is a decoded system-program transfer extracted from a
// confirmed transaction.
type TransferDetails struct {
	Sender    string
	Recipient string
	Lamports  uint64
	Memo      string
}
