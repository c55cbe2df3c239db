package solana

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignature = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

func finalizedStatus(slot uint64) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{
				Slot:               slot,
				ConfirmationStatus: rpc.ConfirmationStatusFinalized,
			},
		},
	}
}

func confirmedStatus(slot uint64) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{
				Slot:               slot,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
			},
		},
	}
}

func unseenStatus() *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{nil},
	}
}

func TestVerifyTransfer_Confirmed(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txResult:      transferTransactionResult(t, sender, recipient, 1_000_000, "purchase-1"),
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  1_000_000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, verdict.Outcome)
	assert.Empty(t, verdict.Reason)
	assert.Equal(t, uint64(120), verdict.Slot)
	assert.Equal(t, sender.String(), verdict.Sender)
	assert.Equal(t, recipient.String(), verdict.Recipient)
	assert.Equal(t, uint64(1_000_000), verdict.Lamports)
	assert.Equal(t, 1, mock.statusCalls)
	assert.Equal(t, 1, mock.txCalls)
}

func TestVerifyTransfer_ConfirmedAfterPolling(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	// First poll sees nothing, second sees confirmed, third finalized.
	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{
			unseenStatus(),
			confirmedStatus(119),
			finalizedStatus(120),
		},
		txResult: transferTransactionResult(t, sender, recipient, 500, ""),
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  500,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, verdict.Outcome)
	assert.Equal(t, 3, mock.statusCalls)
}

func TestVerifyTransfer_AmountMismatch(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txResult:      transferTransactionResult(t, sender, recipient, 999, ""),
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, verdict.Outcome)
	assert.Contains(t, verdict.Reason, "amount mismatch")
}

func TestVerifyTransfer_RecipientMismatch(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txResult:      transferTransactionResult(t, sender, other, 1000, ""),
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, verdict.Outcome)
	assert.Contains(t, verdict.Reason, "recipient mismatch")
}

func TestVerifyTransfer_SenderMismatch(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txResult:      transferTransactionResult(t, other, recipient, 1000, ""),
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, verdict.Outcome)
	assert.Contains(t, verdict.Reason, "sender mismatch")
}

func TestVerifyTransfer_FailedOnChain(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{
			{
				Value: []*rpc.SignatureStatusesResult{
					{
						Slot: 90,
						Err:  map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}},
					},
				},
			},
		},
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, verdict.Outcome)
	assert.Contains(t, verdict.Reason, "failed on chain")
	// An on-chain failure is permanent; no further polls and no GetTransaction.
	assert.Equal(t, 1, mock.statusCalls)
	assert.Equal(t, 0, mock.txCalls)
}

func TestVerifyTransfer_NotFound(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{unseenStatus()},
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, verdict.Outcome)
	// The polling loop is bounded by MaxAttempts.
	assert.Equal(t, testVerifyPolicy().MaxAttempts, mock.statusCalls)
	assert.Equal(t, 0, mock.txCalls)
}

func TestVerifyTransfer_PendingWhenNotFinalized(t *testing.T) {
	ctx := context.Background()

	// The signature is visible but never advances past "confirmed".
	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{confirmedStatus(115)},
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePending, verdict.Outcome)
	assert.Equal(t, uint64(115), verdict.Slot)
	assert.Equal(t, 0, mock.txCalls)
}

func TestVerifyTransfer_RPCUnavailable(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		statusErr: assert.AnError,
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Nil(t, verdict)
}

func TestVerifyTransfer_GetTransactionError(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txErr:         assert.AnError,
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Nil(t, verdict)
}

func TestVerifyTransfer_NoUsableTransfer(t *testing.T) {
	ctx := context.Background()

	// The finalized transaction exists but carries no system transfer.
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{solana.NewWallet().PublicKey(), MemoProgramIDSPL},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 1,
					Accounts:       []uint16{},
					Data:           []byte("memo only"),
				},
			},
		},
	}

	mock := &mockRPCClient{
		statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
		txResult: &rpc.GetTransactionResult{
			Transaction: makeTransactionEnvelope(t, tx),
		},
	}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, verdict.Outcome)
	assert.Contains(t, verdict.Reason, "no usable transfer")
}

func TestVerifyTransfer_InvalidSignature(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{}
	client := newTestClient(mock)

	verdict, err := client.VerifyTransfer(ctx, VerifyTransferParams{
		Signature:         "not-a-signature",
		ExpectedSender:    solana.NewWallet().PublicKey().String(),
		ExpectedRecipient: solana.NewWallet().PublicKey().String(),
		ExpectedLamports:  1000,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, verdict)
	assert.Equal(t, 0, mock.statusCalls)
}

// Verification is read-only: running it twice against the same fixtures
// produces the same verdict.
func TestVerifyTransfer_Repeatable(t *testing.T) {
	ctx := context.Background()

	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	params := VerifyTransferParams{
		Signature:         testSignature,
		ExpectedSender:    sender.String(),
		ExpectedRecipient: recipient.String(),
		ExpectedLamports:  42,
	}

	for i := 0; i < 2; i++ {
		mock := &mockRPCClient{
			statusResults: []*rpc.GetSignatureStatusesResult{finalizedStatus(120)},
			txResult:      transferTransactionResult(t, sender, recipient, 42, ""),
		}
		client := newTestClient(mock)

		verdict, err := client.VerifyTransfer(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, verdict.Outcome)
	}
}
