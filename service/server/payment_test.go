package server

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSolanaPayURL(t *testing.T) {
	recipient := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

	payURL := buildSolanaPayURL(recipient, 1_500_000_000, "purchase-123", "PhotoPay")

	require.True(t, strings.HasPrefix(payURL, "solana:"+recipient+"?"))

	params, err := url.ParseQuery(strings.SplitN(payURL, "?", 2)[1])
	require.NoError(t, err)

	// 1.5 SOL with 9 decimal places
	assert.Equal(t, "1.500000000", params.Get("amount"))
	assert.Equal(t, "purchase-123", params.Get("memo"))
	assert.Equal(t, "PhotoPay", params.Get("label"))
}

func TestBuildSolanaPayURL_SmallAmount(t *testing.T) {
	payURL := buildSolanaPayURL("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", 1, "p", "PhotoPay")

	params, err := url.ParseQuery(strings.SplitN(payURL, "?", 2)[1])
	require.NoError(t, err)

	// One lamport is the smallest representable amount.
	assert.Equal(t, "0.000000001", params.Get("amount"))
}

func TestGenerateQRCode(t *testing.T) {
	data, err := generateQRCode("solana:9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM?amount=1.000000000")
	require.NoError(t, err)

	png, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)

	// PNG magic bytes
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
