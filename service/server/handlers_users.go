package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/photopay/photopay/service/db"
)

// handleCreateUser returns a handler that registers a new user.
// POST /api/v1/users
func handleCreateUser(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			WalletAddress string  `json:"wallet_address"`
			Username      *string `json:"username"`
			Role          string  `json:"role"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode create user request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid wallet address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Role == "" {
			req.Role = db.RoleBuyer
		}
		if err := validateRole(req.Role); err != nil {
			logger.Debug("invalid role", "role", req.Role, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.CreateUser(r.Context(), db.CreateUserParams{
			WalletAddress: req.WalletAddress,
			Username:      req.Username,
			Role:          req.Role,
		})
		if err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				writeError(w, "user already exists", http.StatusConflict)
				return
			}
			logger.Error("failed to create user", "address", req.WalletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("user registered", "address", user.WalletAddress, "role", user.Role)
		writeJSON(w, userToResponse(user), http.StatusCreated)
	})
}

// handleGetUser returns a handler that retrieves a user by wallet address.
// GET /api/v1/users/{wallet}
func handleGetUser(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")

		if err := validateAddress(wallet); err != nil {
			logger.Debug("invalid wallet address", "address", wallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.GetUser(r.Context(), wallet)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get user", "address", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, userToResponse(user), http.StatusOK)
	})
}

// handleUpdateUser returns a handler that changes a user's username. Sending
// a null username clears it.
// PUT /api/v1/users/{wallet}
func handleUpdateUser(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		wallet := r.PathValue("wallet")
		if err := validateAddress(wallet); err != nil {
			logger.Debug("invalid wallet address", "address", wallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Username *string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.Username != nil && strings.TrimSpace(*req.Username) == "" {
			writeError(w, "username cannot be blank: send null to clear it", http.StatusBadRequest)
			return
		}

		user, err := store.UpdateUsername(r.Context(), wallet, req.Username)
		if err != nil {
			switch {
			case errors.Is(err, db.ErrNotFound):
				writeError(w, "user not found", http.StatusNotFound)
			case errors.Is(err, db.ErrAlreadyExists):
				writeError(w, "username already taken", http.StatusConflict)
			default:
				logger.Error("failed to update username", "address", wallet, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		logger.Info("username updated", "address", wallet)
		writeJSON(w, userToResponse(user), http.StatusOK)
	})
}

// handleListUsers returns a handler that lists registered users.
// GET /api/v1/users
func handleListUsers(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset := parsePagination(r)

		users, err := store.ListUsers(r.Context(), limit, offset)
		if err != nil {
			logger.Error("failed to list users", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]userResponse, len(users))
		for i, u := range users {
			resp[i] = userToResponse(u)
		}

		writeJSON(w, map[string]interface{}{
			"users": resp,
		}, http.StatusOK)
	})
}
