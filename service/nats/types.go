package nats

import (
	"time"

	"github.com/photopay/photopay/service/db"
)

// PurchaseEvent represents a purchase lifecycle event published to NATS.
// Events are published to the subject "purchases.{buyer_wallet}" in JetStream.
type PurchaseEvent struct {
	PurchaseID  string `json:"purchase_id"`
	ListingID   string `json:"listing_id"`
	BuyerWallet string `json:"buyer_wallet"`

	Status         string `json:"status"`
	AmountLamports int64  `json:"amount_lamports"`
	Recipient      string `json:"recipient"`
	Signature      string `json:"signature,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`

	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromPurchase converts a purchase record to a PurchaseEvent for publishing.
func FromPurchase(p *db.Purchase) *PurchaseEvent {
	event := &PurchaseEvent{
		PurchaseID:     p.ID.String(),
		ListingID:      p.ListingID.String(),
		BuyerWallet:    p.BuyerWallet,
		Status:         p.Status,
		AmountLamports: p.AmountLamports,
		Recipient:      p.RecipientAddress,
		OccurredAt:     p.CreatedAt,
		PublishedAt:    time.Now().UTC(),
	}

	if p.TransactionSignature != nil {
		event.Signature = *p.TransactionSignature
	}
	if p.FailureReason != nil {
		event.FailureReason = *p.FailureReason
	}
	if p.ConfirmedAt != nil {
		event.OccurredAt = *p.ConfirmedAt
	}

	return event
}
