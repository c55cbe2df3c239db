package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/photopay/photopay/service/db"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for JSON request bodies
	defaultPageLimit   = 50
	maxPageLimit       = 200
)

// userResponse is the JSON shape of a user.
type userResponse struct {
	WalletAddress string    `json:"wallet_address"`
	Username      *string   `json:"username,omitempty"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

func userToResponse(u *db.User) userResponse {
	return userResponse{
		WalletAddress: u.WalletAddress,
		Username:      u.Username,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
	}
}

// listingResponse is the JSON shape of a listing. The object key is internal
// and never exposed; buyers get content through the download endpoint.
type listingResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PriceLamports int64     `json:"price_lamports"`
	CreatorWallet string    `json:"creator_wallet"`
	PreviewURL    *string   `json:"preview_url,omitempty"`
	IsActive      bool      `json:"is_active"`
	IsSold        bool      `json:"is_sold"`
	CreatedAt     time.Time `json:"created_at"`
}

func listingToResponse(l *db.Listing) listingResponse {
	return listingResponse{
		ID:            l.ID.String(),
		Title:         l.Title,
		Description:   l.Description,
		PriceLamports: l.PriceLamports,
		CreatorWallet: l.CreatorWallet,
		PreviewURL:    l.PreviewURL,
		IsActive:      l.IsActive,
		IsSold:        l.IsSold,
		CreatedAt:     l.CreatedAt,
	}
}

// purchaseResponse is the JSON shape of a purchase.
type purchaseResponse struct {
	ID                   string     `json:"id"`
	ListingID            string     `json:"listing_id"`
	BuyerWallet          string     `json:"buyer_wallet"`
	RecipientAddress     string     `json:"recipient_address"`
	AmountLamports       int64      `json:"amount_lamports"`
	Status               string     `json:"status"`
	Blockhash            *string    `json:"blockhash,omitempty"`
	LastValidBlockHeight *int64     `json:"last_valid_block_height,omitempty"`
	TransactionSignature *string    `json:"transaction_signature,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
}

func purchaseToResponse(p *db.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:                   p.ID.String(),
		ListingID:            p.ListingID.String(),
		BuyerWallet:          p.BuyerWallet,
		RecipientAddress:     p.RecipientAddress,
		AmountLamports:       p.AmountLamports,
		Status:               p.Status,
		Blockhash:            p.Blockhash,
		LastValidBlockHeight: p.LastValidBlockHeight,
		TransactionSignature: p.TransactionSignature,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt,
		ConfirmedAt:          p.ConfirmedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeStoreError maps store errors onto HTTP responses. Unknown errors are
// logged by the caller and become opaque 500s.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, db.ErrAlreadyExists):
		writeError(w, "already exists", http.StatusConflict)
	case errors.Is(err, db.ErrConflict):
		writeError(w, "conflicting purchase state", http.StatusConflict)
	default:
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// parsePagination reads limit/offset query parameters with sane bounds.
func parsePagination(r *http.Request) (limit, offset int32) {
	limit = defaultPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(min(n, maxPageLimit))
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
