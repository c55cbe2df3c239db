package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/photopay/photopay/service/config"
	"github.com/photopay/photopay/service/db"
	"github.com/photopay/photopay/service/storage"
)

// allowedUploadExtensions are the file types accepted for listing content.
var allowedUploadExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// handleCreateListing returns a handler that creates a listing with its
// content uploaded as multipart form data.
// POST /api/v1/listings
func handleCreateListing(store *db.Store, objects storage.ObjectStore, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)

		if err := r.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
			logger.Debug("failed to parse multipart form", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, fmt.Sprintf("upload too large: maximum size is %d bytes", cfg.MaxUploadBytes), http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request: must be multipart form data", http.StatusBadRequest)
			return
		}

		title := r.FormValue("title")
		if err := validateTitle(title); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		creatorWallet := r.FormValue("creator_wallet")
		if err := validateAddress(creatorWallet); err != nil {
			logger.Debug("invalid creator wallet", "address", creatorWallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		priceLamports, err := strconv.ParseInt(r.FormValue("price_lamports"), 10, 64)
		if err != nil || priceLamports <= 0 {
			writeError(w, "price_lamports must be a positive integer", http.StatusBadRequest)
			return
		}

		creator, err := store.GetUser(r.Context(), creatorWallet)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "creator not registered", http.StatusNotFound)
				return
			}
			logger.Error("failed to get creator", "address", creatorWallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if creator.Role != db.RoleCreator {
			writeError(w, "only creators can publish listings", http.StatusForbidden)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, "file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		ext := strings.ToLower(path.Ext(header.Filename))
		if !allowedUploadExtensions[ext] {
			writeError(w, "unsupported file type: must be jpg, jpeg, png, gif, or webp", http.StatusBadRequest)
			return
		}

		listingID := uuid.New()
		objectKey := fmt.Sprintf("listings/%s%s", listingID, ext)
		contentType := header.Header.Get("Content-Type")

		if err := objects.Upload(r.Context(), objectKey, contentType, file); err != nil {
			logger.Error("failed to upload listing content", "key", objectKey, "error", err)
			writeError(w, "failed to store listing content", http.StatusBadGateway)
			return
		}

		listing, err := store.CreateListing(r.Context(), db.CreateListingParams{
			ID:            listingID,
			Title:         title,
			Description:   r.FormValue("description"),
			PriceLamports: priceLamports,
			CreatorWallet: creatorWallet,
			ObjectKey:     objectKey,
		})
		if err != nil {
			// Don't leave an orphaned object behind.
			if delErr := objects.Delete(r.Context(), objectKey); delErr != nil {
				logger.Warn("failed to delete orphaned object", "key", objectKey, "error", delErr)
			}
			logger.Error("failed to create listing", "creator", creatorWallet, "error", err)
			writeStoreError(w, err)
			return
		}

		logger.Info("listing created",
			"listing_id", listing.ID,
			"creator", creatorWallet,
			"price_lamports", priceLamports,
		)
		writeJSON(w, listingToResponse(listing), http.StatusCreated)
	})
}

// handleListListings returns a handler that lists listings.
// GET /api/v1/listings?creator={wallet}&active=true
func handleListListings(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset := parsePagination(r)

		creator := r.URL.Query().Get("creator")
		if creator != "" {
			if err := validateAddress(creator); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		listings, err := store.ListListings(r.Context(), db.ListListingsParams{
			CreatorWallet: creator,
			ActiveOnly:    r.URL.Query().Get("active") == "true",
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			logger.Error("failed to list listings", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]listingResponse, len(listings))
		for i, l := range listings {
			resp[i] = listingToResponse(l)
		}

		writeJSON(w, map[string]interface{}{
			"listings": resp,
		}, http.StatusOK)
	})
}

// handleGetListing returns a handler that retrieves a listing by id.
// GET /api/v1/listings/{id}
func handleGetListing(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		listing, err := store.GetListing(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "listing not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get listing", "listing_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, listingToResponse(listing), http.StatusOK)
	})
}

// handleDeactivateListing returns a handler that soft-deletes a listing.
// DELETE /api/v1/listings/{id}?creator={wallet}
func handleDeactivateListing(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		creator := r.URL.Query().Get("creator")
		if err := validateAddress(creator); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeactivateListing(r.Context(), id, creator); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "listing not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to deactivate listing", "listing_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("listing deactivated", "listing_id", id, "creator", creator)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleDownloadListing returns a handler that issues a short-lived signed URL
// for the full-resolution content. Only the creator or a buyer with a
// confirmed purchase may download.
// GET /api/v1/listings/{id}/download?wallet={wallet}
func handleDownloadListing(store *db.Store, objects storage.ObjectStore, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet := r.URL.Query().Get("wallet")
		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		listing, err := store.GetListing(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "listing not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get listing", "listing_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if listing.CreatorWallet != wallet {
			owns, err := store.HasConfirmedPurchase(r.Context(), id, wallet)
			if err != nil {
				logger.Error("failed to check purchase ownership", "listing_id", id, "wallet", wallet, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !owns {
				writeError(w, "no confirmed purchase for this listing", http.StatusForbidden)
				return
			}
		}

		url, err := objects.SignedURL(r.Context(), listing.ObjectKey, cfg.SignedURLTTL)
		if err != nil {
			logger.Error("failed to sign download url", "listing_id", id, "error", err)
			writeError(w, "failed to generate download url", http.StatusBadGateway)
			return
		}

		writeJSON(w, map[string]interface{}{
			"download_url": url,
			"expires_in":   int64(cfg.SignedURLTTL.Seconds()),
		}, http.StatusOK)
	})
}

// handleListUnlockedListings returns a handler that lists the content a buyer
// has unlocked through confirmed purchases.
// GET /api/v1/buyers/{wallet}/unlocked
func handleListUnlockedListings(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")
		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, offset := parsePagination(r)

		listings, err := store.ListUnlockedListings(r.Context(), wallet, limit, offset)
		if err != nil {
			logger.Error("failed to list unlocked listings", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]listingResponse, len(listings))
		for i, l := range listings {
			resp[i] = listingToResponse(l)
		}

		writeJSON(w, map[string]interface{}{
			"listings": resp,
		}, http.StatusOK)
	})
}

// handleGetCreatorStats returns a handler that aggregates a creator's sales.
// GET /api/v1/creators/{wallet}/stats
func handleGetCreatorStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")

		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := store.GetCreatorStats(r.Context(), wallet)
		if err != nil {
			logger.Error("failed to get creator stats", "address", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"creator_wallet":        stats.CreatorWallet,
			"total_listings":        stats.TotalListings,
			"active_listings":       stats.ActiveListings,
			"sold_listings":         stats.SoldListings,
			"total_earned_lamports": stats.TotalEarnedLamports,
		}, http.StatusOK)
	})
}
