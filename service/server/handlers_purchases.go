package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/photopay/photopay/service/config"
	"github.com/photopay/photopay/service/db"
	"github.com/photopay/photopay/service/metrics"
	"github.com/photopay/photopay/service/nats"
	"github.com/photopay/photopay/service/solana"
)

// paymentLabel is shown by wallet apps scanning the Solana Pay QR code.
const paymentLabel = "PhotoPay"

// verifyResponse is the JSON shape of a verification result.
type verifyResponse struct {
	Status   string           `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Purchase purchaseResponse `json:"purchase"`
}

// handleCreatePurchase returns a handler that opens a pending purchase for a
// listing, snapshotting its price and recipient.
// POST /api/v1/purchases
func handleCreatePurchase(store *db.Store, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			ListingID   string `json:"listing_id"`
			BuyerWallet string `json:"buyer_wallet"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode create purchase request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		listingID, err := parseID(req.ListingID)
		if err != nil {
			writeError(w, "invalid listing_id: must be a UUID", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.BuyerWallet); err != nil {
			logger.Debug("invalid buyer wallet", "address", req.BuyerWallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		listing, err := store.GetListing(r.Context(), listingID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "listing not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get listing", "listing_id", listingID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !listing.IsActive || listing.IsSold {
			writeError(w, "listing is not available for purchase", http.StatusConflict)
			return
		}
		if listing.CreatorWallet == req.BuyerWallet {
			writeError(w, "creators cannot purchase their own listings", http.StatusBadRequest)
			return
		}

		if _, err := store.GetUser(r.Context(), req.BuyerWallet); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "buyer not registered", http.StatusNotFound)
				return
			}
			logger.Error("failed to get buyer", "address", req.BuyerWallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		owns, err := store.HasConfirmedPurchase(r.Context(), listingID, req.BuyerWallet)
		if err != nil {
			logger.Error("failed to check purchase ownership", "listing_id", listingID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if owns {
			writeError(w, "listing already purchased by this wallet", http.StatusConflict)
			return
		}

		purchase, err := store.CreatePurchase(r.Context(), db.CreatePurchaseParams{
			ID:               uuid.New(),
			ListingID:        listingID,
			BuyerWallet:      req.BuyerWallet,
			RecipientAddress: listing.CreatorWallet,
			AmountLamports:   listing.PriceLamports,
		})
		if err != nil {
			logger.Error("failed to create purchase", "listing_id", listingID, "error", err)
			writeStoreError(w, err)
			return
		}

		logger.Info("purchase created",
			"purchase_id", purchase.ID,
			"listing_id", listingID,
			"buyer", req.BuyerWallet,
			"amount_lamports", purchase.AmountLamports,
		)
		publishPurchaseEvent(r.Context(), publisher, logger, purchase)
		writeJSON(w, purchaseToResponse(purchase), http.StatusCreated)
	})
}

// handleGetPurchase returns a handler that retrieves a purchase by id.
// GET /api/v1/purchases/{id}
func handleGetPurchase(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		purchase, err := store.GetPurchase(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "purchase not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get purchase", "purchase_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, purchaseToResponse(purchase), http.StatusOK)
	})
}

// handleListPurchases returns a handler that lists a buyer's purchase history.
// GET /api/v1/purchases?buyer_wallet={wallet}
func handleListPurchases(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buyer := r.URL.Query().Get("buyer_wallet")
		if err := validateAddress(buyer); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, offset := parsePagination(r)

		purchases, err := store.ListPurchasesByBuyer(r.Context(), buyer, limit, offset)
		if err != nil {
			logger.Error("failed to list purchases", "buyer", buyer, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]purchaseResponse, len(purchases))
		for i, p := range purchases {
			resp[i] = purchaseToResponse(p)
		}

		writeJSON(w, map[string]interface{}{
			"purchases": resp,
		}, http.StatusOK)
	})
}

// handleBuildPurchaseTransaction returns a handler that assembles an unsigned
// transfer transaction paying for the purchase, along with a Solana Pay URL
// and QR code. The purchase must still be pending; re-requesting after a
// blockhash expired is allowed.
// POST /api/v1/purchases/{id}/transaction
func handleBuildPurchaseTransaction(store *db.Store, solanaClient *solana.Client, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			SenderAddress string `json:"sender_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.SenderAddress); err != nil {
			logger.Debug("invalid sender address", "address", req.SenderAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		purchase, err := store.GetPurchase(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "purchase not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get purchase", "purchase_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if purchase.Status != db.PurchaseStatusPending {
			writeError(w, "purchase is "+purchase.Status+": transaction can only be built while pending", http.StatusConflict)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.RPCTimeout)
		defer cancel()

		unsigned, err := solanaClient.BuildTransfer(ctx, solana.BuildTransferParams{
			Sender:    req.SenderAddress,
			Recipient: purchase.RecipientAddress,
			Lamports:  purchase.AmountLamports,
			Reference: purchase.ID.String(),
		})
		if err != nil {
			switch {
			case errors.Is(err, solana.ErrInvalidAmount), errors.Is(err, solana.ErrInvalidAddress):
				writeError(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, solana.ErrUpstreamUnavailable):
				logger.Error("solana rpc unavailable", "purchase_id", id, "error", err)
				writeError(w, "payment network unavailable, try again later", http.StatusBadGateway)
			default:
				logger.Error("failed to build transfer", "purchase_id", id, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		updated, err := store.SetPurchaseBlockhash(r.Context(), id, unsigned.Blockhash, int64(unsigned.LastValidBlockHeight))
		if err != nil {
			logger.Error("failed to record blockhash", "purchase_id", id, "error", err)
			writeStoreError(w, err)
			return
		}

		paymentURL := buildSolanaPayURL(purchase.RecipientAddress, purchase.AmountLamports, purchase.ID.String(), paymentLabel)
		qrCodeData, err := generateQRCode(paymentURL)
		if err != nil {
			// QR code is optional; the payment URL and raw transaction suffice.
			logger.Warn("failed to generate QR code", "purchase_id", id, "error", err)
			qrCodeData = ""
		}

		logger.Info("built purchase transaction",
			"purchase_id", id,
			"sender", req.SenderAddress,
			"blockhash", unsigned.Blockhash,
		)
		writeJSON(w, map[string]interface{}{
			"unsigned_transaction_base64": unsigned.Base64,
			"blockhash":                   unsigned.Blockhash,
			"last_valid_block_height":     unsigned.LastValidBlockHeight,
			"payment_url":                 paymentURL,
			"qr_code_data":                qrCodeData,
			"purchase":                    purchaseToResponse(updated),
		}, http.StatusOK)
	})
}

// handleVerifyPurchase returns a handler that verifies a submitted payment
// signature against the purchase and reconciles the record. The verification
// is synchronous and idempotent: re-invoking for a settled purchase returns
// the current record without touching it.
// POST /api/v1/purchases/{id}/verify
func handleVerifyPurchase(store *db.Store, solanaClient *solana.Client, publisher nats.Publisher, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Signature string `json:"signature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if err := validateSignature(req.Signature); err != nil {
			logger.Debug("invalid signature", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		purchase, err := store.GetPurchase(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "purchase not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get purchase", "purchase_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Terminal purchases absorb repeat verify calls as no-ops.
		if purchase.Status == db.PurchaseStatusConfirmed || purchase.Status == db.PurchaseStatusFailed {
			writeJSON(w, verifyResponse{
				Status:   purchase.Status,
				Purchase: purchaseToResponse(purchase),
			}, http.StatusOK)
			return
		}

		purchase, err = store.MarkPurchaseAwaitingConfirmation(r.Context(), id, req.Signature)
		if err != nil {
			if errors.Is(err, db.ErrConflict) {
				// Either a different signature is under verification, or a
				// concurrent verify settled the purchase first.
				current, getErr := store.GetPurchase(r.Context(), id)
				if getErr == nil && (current.Status == db.PurchaseStatusConfirmed || current.Status == db.PurchaseStatusFailed) {
					writeJSON(w, verifyResponse{
						Status:   current.Status,
						Purchase: purchaseToResponse(current),
					}, http.StatusOK)
					return
				}
				writeError(w, "another signature is already under verification for this purchase", http.StatusConflict)
				return
			}
			logger.Error("failed to mark purchase awaiting confirmation", "purchase_id", id, "error", err)
			writeStoreError(w, err)
			return
		}

		// Verification and the reconciliation writes that follow run on a
		// server-side budget detached from the client connection: a disconnect
		// must not strand the purchase mid-flight.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cfg.VerifyBudget+10*time.Second)
		defer cancel()

		start := time.Now()
		verdict, err := solanaClient.VerifyTransfer(ctx, solana.VerifyTransferParams{
			Signature:         req.Signature,
			ExpectedSender:    purchase.BuyerWallet,
			ExpectedRecipient: purchase.RecipientAddress,
			ExpectedLamports:  purchase.AmountLamports,
		})
		if err != nil {
			switch {
			case errors.Is(err, solana.ErrInvalidSignature):
				writeError(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, solana.ErrUpstreamUnavailable):
				// Purchase stays awaiting_confirmation; the client can verify again.
				logger.Error("solana rpc unavailable during verification", "purchase_id", id, "error", err)
				writeError(w, "payment network unavailable, try again later", http.StatusBadGateway)
			default:
				logger.Error("verification failed", "purchase_id", id, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}
		if m != nil {
			m.RecordVerificationDuration(string(verdict.Outcome), time.Since(start).Seconds())
		}

		switch verdict.Outcome {
		case solana.OutcomeConfirmed:
			confirmed, err := store.ConfirmPurchase(ctx, id)
			if err != nil {
				if errors.Is(err, db.ErrConflict) {
					// A concurrent verify settled the purchase; return the winner's record.
					current, getErr := store.GetPurchase(ctx, id)
					if getErr == nil {
						writeJSON(w, verifyResponse{
							Status:   current.Status,
							Purchase: purchaseToResponse(current),
						}, http.StatusOK)
						return
					}
				}
				logger.Error("failed to confirm purchase", "purchase_id", id, "error", err)
				writeStoreError(w, err)
				return
			}
			logger.Info("purchase confirmed",
				"purchase_id", id,
				"signature", req.Signature,
				"slot", verdict.Slot,
			)
			publishPurchaseEvent(r.Context(), publisher, logger, confirmed)
			writeJSON(w, verifyResponse{
				Status:   confirmed.Status,
				Purchase: purchaseToResponse(confirmed),
			}, http.StatusOK)

		case solana.OutcomeMismatch, solana.OutcomeNotFound:
			failed, err := store.FailPurchase(ctx, id, verdict.Reason)
			if err != nil {
				if errors.Is(err, db.ErrConflict) {
					current, getErr := store.GetPurchase(ctx, id)
					if getErr == nil {
						writeJSON(w, verifyResponse{
							Status:   current.Status,
							Purchase: purchaseToResponse(current),
						}, http.StatusOK)
						return
					}
				}
				logger.Error("failed to fail purchase", "purchase_id", id, "error", err)
				writeStoreError(w, err)
				return
			}
			logger.Info("purchase failed verification",
				"purchase_id", id,
				"signature", req.Signature,
				"reason", verdict.Reason,
			)
			publishPurchaseEvent(r.Context(), publisher, logger, failed)
			writeJSON(w, verifyResponse{
				Status:   failed.Status,
				Reason:   verdict.Reason,
				Purchase: purchaseToResponse(failed),
			}, http.StatusOK)

		default: // solana.OutcomePending
			// Not final yet: the purchase stays awaiting_confirmation and the
			// client may verify again with the same signature.
			writeJSON(w, verifyResponse{
				Status:   "pending",
				Reason:   verdict.Reason,
				Purchase: purchaseToResponse(purchase),
			}, http.StatusOK)
		}
	})
}

// publishPurchaseEvent emits a purchase lifecycle event, best effort. Event
// delivery never fails the request.
func publishPurchaseEvent(ctx context.Context, publisher nats.Publisher, logger *slog.Logger, p *db.Purchase) {
	if publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := publisher.PublishPurchaseEvent(pubCtx, nats.FromPurchase(p)); err != nil {
		logger.Warn("failed to publish purchase event",
			"purchase_id", p.ID,
			"status", p.Status,
			"error", err,
		)
	}
}
