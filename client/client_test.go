package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// newTestServer returns a client wired to a server running handler.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), nil)
}

func TestCreateUser(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/users", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testWallet, req["wallet_address"])
		assert.Equal(t, "creator", req["role"])
		assert.Equal(t, "alice", req["username"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet_address": testWallet,
			"username":       "alice",
			"role":           "creator",
		})
	})

	username := "alice"
	user, err := c.CreateUser(context.Background(), testWallet, &username, "creator")
	require.NoError(t, err)
	assert.Equal(t, testWallet, user.WalletAddress)
	assert.Equal(t, "creator", user.Role)
}

func TestCreateUser_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "user already exists"})
	})

	_, err := c.CreateUser(context.Background(), testWallet, nil, "buyer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user already exists")
}

func TestUpdateUser(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PUT", r.Method)
		require.Equal(t, "/api/v1/users/"+testWallet, r.URL.Path)

		var req map[string]*string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req["username"])
		assert.Equal(t, "alice", *req["username"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet_address": testWallet,
			"username":       "alice",
			"role":           "creator",
		})
	})

	username := "alice"
	user, err := c.UpdateUser(context.Background(), testWallet, &username)
	require.NoError(t, err)
	require.NotNil(t, user.Username)
	assert.Equal(t, "alice", *user.Username)
}

func TestGetUser_NonJSONError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream exploded")
	})

	_, err := c.GetUser(context.Background(), testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestCreateListing(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/listings", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Sunset", r.FormValue("title"))
		assert.Equal(t, "1500000", r.FormValue("price_lamports"))
		assert.Equal(t, testWallet, r.FormValue("creator_wallet"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "sunset.jpg", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "image-bytes", string(data))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "11111111-2222-3333-4444-555555555555",
			"title":          "Sunset",
			"price_lamports": 1500000,
			"creator_wallet": testWallet,
			"is_active":      true,
		})
	})

	listing, err := c.CreateListing(context.Background(), CreateListingParams{
		Title:         "Sunset",
		PriceLamports: 1_500_000,
		CreatorWallet: testWallet,
		Filename:      "sunset.jpg",
		Content:       strings.NewReader("image-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Sunset", listing.Title)
	assert.True(t, listing.IsActive)
}

func TestListListings_QueryParams(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testWallet, r.URL.Query().Get("creator"))
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"listings": []map[string]interface{}{
				{"id": "a", "title": "one"},
				{"id": "b", "title": "two"},
			},
		})
	})

	listings, err := c.ListListings(context.Background(), testWallet, true)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "one", listings[0].Title)
}

func TestBuildTransaction(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/purchases/p-1/transaction", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testWallet, req["sender_address"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"unsigned_transaction_base64": "AQID",
			"blockhash":                   "hash-1",
			"last_valid_block_height":     9000,
			"payment_url":                 "solana:" + testWallet + "?amount=0.001500000",
			"purchase":                    map[string]interface{}{"id": "p-1", "status": "pending"},
		})
	})

	payment, err := c.BuildTransaction(context.Background(), "p-1", testWallet)
	require.NoError(t, err)
	assert.Equal(t, "AQID", payment.UnsignedTransactionBase64)
	assert.Equal(t, "hash-1", payment.Blockhash)
	assert.Equal(t, uint64(9000), payment.LastValidBlockHeight)
	assert.Equal(t, "pending", payment.Purchase.Status)
}

func TestVerify(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/purchases/p-1/verify", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sig-1", req["signature"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "failed",
			"reason":   "amount mismatch: expected 1000 lamports, got 5",
			"purchase": map[string]interface{}{"id": "p-1", "status": "failed"},
		})
	})

	result, err := c.Verify(context.Background(), "p-1", "sig-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
	assert.Contains(t, result.Reason, "amount mismatch")
}

func TestVerify_Conflict(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "another signature is already under verification for this purchase",
		})
	})

	_, err := c.Verify(context.Background(), "p-1", "sig-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another signature")
}

func TestDownloadURL(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/listings/l-1/download", r.URL.Path)
		assert.Equal(t, testWallet, r.URL.Query().Get("wallet"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"download_url": "https://storage.example.com/listings/l-1.jpg",
			"expires_in":   900,
		})
	})

	url, err := c.DownloadURL(context.Background(), "l-1", testWallet)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/listings/l-1.jpg", url)
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth_Down(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")
}
