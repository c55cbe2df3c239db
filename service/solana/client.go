package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/photopay/photopay/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// VerifyPolicy bounds the verifier's polling loop. A signature is polled with
// exponential backoff until it reaches finality, MaxAttempts polls have been
// made, or Budget has elapsed, whichever comes first.
type VerifyPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Budget         time.Duration
}

// DefaultVerifyPolicy returns the polling bounds used when none are configured.
func DefaultVerifyPolicy() VerifyPolicy {
	return VerifyPolicy{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		Budget:         60 * time.Second,
	}
}

// Client builds unsigned transfer transactions and verifies submitted ones.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
	policy   VerifyPolicy
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, policy VerifyPolicy, m *metrics.Metrics, logger *slog.Logger) *Client {
	if policy.MaxAttempts < 1 {
		policy = DefaultVerifyPolicy()
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
		policy:   policy,
	}
}

// ParseAddress decodes a base58 wallet address and checks that it is a valid
// ed25519 curve point. Program-derived addresses are rejected; only real
// wallets can send or receive marketplace payments.
func ParseAddress(addr string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if !pk.IsOnCurve() {
		return solana.PublicKey{}, fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalidAddress, addr)
	}
	return pk, nil
}

// BuildTransferParams contains parameters for assembling an unsigned transfer.
type BuildTransferParams struct {
	Sender    string
	Recipient string
	Lamports  int64
	Reference string // attached as a memo instruction when non-empty
}

// BuildTransfer fetches the latest blockhash and assembles an unsigned
// system-program transfer from sender to recipient. The returned transaction
// is base64-encoded and must be signed by the sender before submission.
//
// The amount and addresses are validated before any RPC call is made.
func (c *Client) BuildTransfer(ctx context.Context, params BuildTransferParams) (*UnsignedTransaction, error) {
	if params.Lamports <= 0 {
		return nil, fmt.Errorf("%w: got %d lamports", ErrInvalidAmount, params.Lamports)
	}

	sender, err := ParseAddress(params.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	recipient, err := ParseAddress(params.Recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	start := time.Now()
	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetLatestBlockhash", status, c.endpoint, duration)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get latest blockhash", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return nil, fmt.Errorf("%w: empty blockhash response", ErrUpstreamUnavailable)
	}

	instructions := []solana.Instruction{
		system.NewTransferInstruction(uint64(params.Lamports), sender, recipient).Build(),
	}
	if params.Reference != "" {
		instructions = append(instructions, solana.NewInstruction(
			MemoProgramIDSPL,
			solana.AccountMetaSlice{},
			[]byte(params.Reference),
		))
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(sender),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transaction: %w", err)
	}

	// MarshalBinary emits a zero signature slot ahead of the message, so the
	// sender can sign the decoded bytes in place.
	full, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	c.logger.DebugContext(ctx, "built unsigned transfer",
		"sender", params.Sender,
		"recipient", params.Recipient,
		"lamports", params.Lamports,
		"blockhash", blockhash.Value.Blockhash.String(),
	)

	return &UnsignedTransaction{
		Base64:               base64.StdEncoding.EncodeToString(full),
		Blockhash:            blockhash.Value.Blockhash.String(),
		LastValidBlockHeight: blockhash.Value.LastValidBlockHeight,
	}, nil
}
