package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/photopay/photopay/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCreatorWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testBuyerWallet   = "7cvHzLB2RSRVT1TM3VcUAAeAyGzhRAhpXWsTyV2Vacb9"
)

func setupTestStore(t *testing.T) *db.TestStore {
	t.Helper()

	db.SkipIfNoTestDB(t)
	ts := db.NewTestStore(t)
	t.Cleanup(ts.Close)
	ts.Cleanup(t)
	return ts
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// decodeJSON unmarshals a recorded response body.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestCreateUser_PathologicalInput(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleCreateUser(ts.Store, testLogger())

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		checkError     func(t *testing.T, body string)
	}{
		{
			name:           "extremely large request body",
			body:           `{"wallet_address":"` + strings.Repeat("A", 10*1024*1024) + `"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "request body too large")
			},
		},
		{
			name:           "malformed JSON",
			body:           `{"wallet_address":`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid request body")
			},
		},
		{
			name:           "empty JSON object",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "address is required")
			},
		},
		{
			name:           "address too long",
			body:           `{"wallet_address":"` + strings.Repeat("A", 500) + `"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "address too long")
			},
		},
		{
			name:           "address with null bytes",
			body:           `{"wallet_address":"wallet\u0000123"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid characters")
			},
		},
		{
			name:           "invalid role",
			body:           `{"wallet_address":"` + testCreatorWallet + `","role":"admin"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid role")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/users", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			tt.checkError(t, rec.Body.String())
		})
	}
}

func TestCreateUser_Success(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleCreateUser(ts.Store, testLogger())

	body := `{"wallet_address":"` + testCreatorWallet + `","username":"alice","role":"creator"}`
	req := httptest.NewRequest("POST", "/api/v1/users", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, testCreatorWallet, resp.WalletAddress)
	assert.Equal(t, "creator", resp.Role)
	require.NotNil(t, resp.Username)
	assert.Equal(t, "alice", *resp.Username)
}

func TestCreateUser_DefaultsToBuyer(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleCreateUser(ts.Store, testLogger())

	body := `{"wallet_address":"` + testBuyerWallet + `"}`
	req := httptest.NewRequest("POST", "/api/v1/users", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "buyer", resp.Role)
}

func TestCreateUser_Duplicate(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleCreateUser(ts.Store, testLogger())

	body := `{"wallet_address":"` + testCreatorWallet + `"}`

	req := httptest.NewRequest("POST", "/api/v1/users", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest("POST", "/api/v1/users", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestGetUser(t *testing.T) {
	ts := setupTestStore(t)

	_, err := ts.CreateUser(context.Background(), db.CreateUserParams{
		WalletAddress: testCreatorWallet,
		Role:          db.RoleCreator,
	})
	require.NoError(t, err)

	handler := handleGetUser(ts.Store, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/users/"+testCreatorWallet, nil)
	req.SetPathValue("wallet", testCreatorWallet)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp userResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, testCreatorWallet, resp.WalletAddress)
}

func TestUpdateUser(t *testing.T) {
	ts := setupTestStore(t)

	_, err := ts.CreateUser(context.Background(), db.CreateUserParams{
		WalletAddress: testCreatorWallet,
		Role:          db.RoleCreator,
	})
	require.NoError(t, err)

	handler := handleUpdateUser(ts.Store, testLogger())

	req := httptest.NewRequest("PUT", "/api/v1/users/"+testCreatorWallet, strings.NewReader(`{"username":"alice"}`))
	req.SetPathValue("wallet", testCreatorWallet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp userResponse
	decodeJSON(t, rec, &resp)
	require.NotNil(t, resp.Username)
	assert.Equal(t, "alice", *resp.Username)

	// A null username clears it.
	req = httptest.NewRequest("PUT", "/api/v1/users/"+testCreatorWallet, strings.NewReader(`{"username":null}`))
	req.SetPathValue("wallet", testCreatorWallet)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	assert.Nil(t, resp.Username)
}

func TestUpdateUser_BlankUsername(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleUpdateUser(ts.Store, testLogger())

	req := httptest.NewRequest("PUT", "/api/v1/users/"+testCreatorWallet, strings.NewReader(`{"username":"   "}`))
	req.SetPathValue("wallet", testCreatorWallet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username cannot be blank")
}

func TestUpdateUser_NotFound(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleUpdateUser(ts.Store, testLogger())

	req := httptest.NewRequest("PUT", "/api/v1/users/"+testCreatorWallet, strings.NewReader(`{"username":"ghost"}`))
	req.SetPathValue("wallet", testCreatorWallet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}

func TestUpdateUser_UsernameTaken(t *testing.T) {
	ts := setupTestStore(t)
	ctx := context.Background()

	alice := "alice"
	_, err := ts.CreateUser(ctx, db.CreateUserParams{
		WalletAddress: testCreatorWallet,
		Username:      &alice,
		Role:          db.RoleCreator,
	})
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, db.CreateUserParams{
		WalletAddress: testBuyerWallet,
		Role:          db.RoleBuyer,
	})
	require.NoError(t, err)

	handler := handleUpdateUser(ts.Store, testLogger())

	req := httptest.NewRequest("PUT", "/api/v1/users/"+testBuyerWallet, strings.NewReader(`{"username":"alice"}`))
	req.SetPathValue("wallet", testBuyerWallet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "username already taken")
}

func TestGetUser_NotFound(t *testing.T) {
	ts := setupTestStore(t)
	handler := handleGetUser(ts.Store, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/users/"+testBuyerWallet, nil)
	req.SetPathValue("wallet", testBuyerWallet)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}
