package server

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// buildSolanaPayURL creates a Solana Pay-compatible URL for the purchase.
// Format: solana:{recipient}?amount={amount}&memo={memo}&label={label}&message={message}
// Wallet apps scanning this build the same transfer the transaction endpoint
// returns; the memo carries the purchase id for reconciliation.
func buildSolanaPayURL(recipient string, amountLamports int64, memo, label string) string {
	// Solana Pay amounts are denominated in SOL
	amountSOL := float64(amountLamports) / 1e9

	params := url.Values{}
	params.Set("amount", fmt.Sprintf("%.9f", amountSOL))
	params.Set("memo", memo)
	params.Set("label", label)

	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// generateQRCode creates a QR code image from a payment URL and returns it as
// a base64-encoded PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
