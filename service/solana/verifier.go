package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Internal polling errors. These drive the retry loop and are never returned
// to callers.
var (
	errSignatureNotSeen  = errors.New("signature not yet observed")
	errNotFinalized      = errors.New("transaction not yet finalized")
	errTransactionFailed = errors.New("transaction failed on chain")
)

var maxSupportedTxVersion = uint64(0)

// VerifyTransferParams contains the expectations a submitted signature is
// checked against.
type VerifyTransferParams struct {
	Signature         string
	ExpectedSender    string
	ExpectedRecipient string
	ExpectedLamports  int64
}

// VerifyTransfer polls a submitted signature until it reaches finality, then
// decodes the transaction and compares its transfer against the expected
// sender, recipient, and amount. The polling loop is bounded by the client's
// VerifyPolicy.
//
// A Verdict is returned for every on-chain state the signature can be in;
// an error is returned only for bad input or an unreachable RPC endpoint.
// Verification is read-only and safe to invoke repeatedly for the same
// signature.
func (c *Client) VerifyTransfer(ctx context.Context, params VerifyTransferParams) (*Verdict, error) {
	sig, err := solana.SignatureFromBase58(params.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, params.Signature)
	}

	verdict := &Verdict{Signature: params.Signature}

	var (
		seen        bool
		gotResponse bool
		lastRPCErr  error
		onChainErr  string
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.InitialBackoff
	bo.MaxInterval = c.policy.InitialBackoff * 8

	operation := func() (*rpc.SignatureStatusesResult, error) {
		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetSignatureStatuses", status, c.endpoint, duration)
		}
		if err != nil {
			lastRPCErr = err
			return nil, err
		}

		gotResponse = true
		lastRPCErr = nil

		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			return nil, errSignatureNotSeen
		}

		st := out.Value[0]
		seen = true
		verdict.Slot = st.Slot

		if st.Err != nil {
			onChainErr = fmt.Sprintf("%v", st.Err)
			return nil, backoff.Permanent(errTransactionFailed)
		}
		if st.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
			return nil, errNotFinalized
		}
		return st, nil
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(c.policy.Budget),
		backoff.WithNotify(func(err error, next time.Duration) {
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetSignatureStatuses", retryReason(err))
			}
			c.logger.DebugContext(ctx, "signature not final, polling again",
				"signature", params.Signature,
				"reason", err,
				"next_poll_in", next,
			)
		}),
	)
	if err != nil {
		switch {
		case errors.Is(err, errTransactionFailed):
			verdict.Outcome = OutcomeMismatch
			verdict.Reason = "transaction failed on chain: " + onChainErr
		case !gotResponse:
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastRPCErr)
		case seen:
			verdict.Outcome = OutcomePending
			verdict.Reason = "transaction observed but not finalized within the polling budget"
		default:
			verdict.Outcome = OutcomeNotFound
			verdict.Reason = "signature not found on chain within the polling budget"
		}
		c.recordVerdict(verdict)
		return verdict, nil
	}

	// Finalized: fetch the full transaction and check the transfer.
	txnOpts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxSupportedTxVersion,
	}
	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, txnOpts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, duration)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to fetch finalized transaction",
			"signature", params.Signature,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	details, err := extractTransfer(result)
	if err != nil {
		verdict.Outcome = OutcomeMismatch
		verdict.Reason = fmt.Sprintf("transaction carries no usable transfer: %v", err)
		c.recordVerdict(verdict)
		return verdict, nil
	}

	verdict.Sender = details.Sender
	verdict.Recipient = details.Recipient
	verdict.Lamports = details.Lamports

	switch {
	case details.Recipient != params.ExpectedRecipient:
		verdict.Outcome = OutcomeMismatch
		verdict.Reason = fmt.Sprintf("recipient mismatch: expected %s, got %s",
			params.ExpectedRecipient, details.Recipient)
	case details.Lamports != uint64(params.ExpectedLamports):
		verdict.Outcome = OutcomeMismatch
		verdict.Reason = fmt.Sprintf("amount mismatch: expected %d lamports, got %d",
			params.ExpectedLamports, details.Lamports)
	case details.Sender != params.ExpectedSender:
		verdict.Outcome = OutcomeMismatch
		verdict.Reason = fmt.Sprintf("sender mismatch: expected %s, got %s",
			params.ExpectedSender, details.Sender)
	default:
		verdict.Outcome = OutcomeConfirmed
	}

	c.logger.InfoContext(ctx, "verified transfer",
		"signature", params.Signature,
		"outcome", verdict.Outcome,
		"reason", verdict.Reason,
		"slot", verdict.Slot,
	)
	c.recordVerdict(verdict)
	return verdict, nil
}

func (c *Client) recordVerdict(v *Verdict) {
	if c.metrics != nil {
		c.metrics.RecordVerification(string(v.Outcome))
	}
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, errSignatureNotSeen):
		return "not_seen"
	case errors.Is(err, errNotFinalized):
		return "not_finalized"
	default:
		return "rpc_error"
	}
}
