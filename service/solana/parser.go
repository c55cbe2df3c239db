package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program. Taken from the
	// library so it can never drift from what the builder emits.
	SystemProgramID = solana.SystemProgramID

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// extractTransfer decodes a GetTransaction result and pulls out the single
// system-program transfer it carries, along with any memo. Returns an error
// if the transaction cannot be decoded or holds no transfer instruction.
func extractTransfer(result *rpc.GetTransactionResult) (*TransferDetails, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("empty transaction result")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	details := &TransferDetails{}
	found := false

	accountKeys := tx.Message.AccountKeys
	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			continue
		}
		programID := accountKeys[instruction.ProgramIDIndex]

		if programID.Equals(SystemProgramID) {
			sender, recipient, lamports, err := parseSystemTransfer(instruction, accountKeys)
			if err != nil {
				continue
			}
			details.Sender = sender.String()
			details.Recipient = recipient.String()
			details.Lamports = lamports
			found = true
		}

		if programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy) {
			details.Memo = string(instruction.Data)
		}
	}

	if !found {
		return nil, fmt.Errorf("no system transfer instruction in transaction")
	}

	return details, nil
}

// parseSystemTransfer extracts source, destination, and lamports from a
// System Program Transfer instruction.
//
// Instruction data layout:
//
//	[0..4]  = instruction type (u32, 2 for Transfer)
//	[4..12] = lamports (u64, little endian)
//
// Account layout: [from, to].
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (from, to solana.PublicKey, lamports uint64, err error) {
	if len(instruction.Data) < 12 {
		return from, to, 0, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return from, to, 0, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	lamports = binary.LittleEndian.Uint64(instruction.Data[4:12])

	if len(instruction.Accounts) < 2 {
		return from, to, 0, fmt.Errorf("transfer instruction missing accounts")
	}
	fromIdx := instruction.Accounts[0]
	toIdx := instruction.Accounts[1]
	if int(fromIdx) >= len(accountKeys) || int(toIdx) >= len(accountKeys) {
		return from, to, 0, fmt.Errorf("account index out of bounds")
	}

	return accountKeys[fromIdx], accountKeys[toIdx], lamports, nil
}
