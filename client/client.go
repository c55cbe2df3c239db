package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the HTTP client for the marketplace service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new marketplace service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// Verify calls block until the server's polling budget runs out, so
		// the default timeout is generous.
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// User is a marketplace participant.
type User struct {
	WalletAddress string    `json:"wallet_address"`
	Username      *string   `json:"username,omitempty"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Listing is an item offered for sale.
type Listing struct {
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

// Purchase records a buyer's attempt to pay for a listing.
type Purchase struct {
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

// PaymentRequest holds everything a buyer needs to pay for a purchase.
type PaymentRequest struct {
	UnsignedTransactionBase64 string   `json:"unsigned_transaction_base64"`
	Blockhash                 string   `json:"blockhash"`
	LastValidBlockHeight      uint64   `json:"last_valid_block_height"`
	PaymentURL                string   `json:"payment_url"`
	QRCodeData                string   `json:"qr_code_data,omitempty"`
	Purchase                  Purchase `json:"purchase"`
}

// VerifyResult is the outcome of a verification call.
type VerifyResult struct {
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Purchase Purchase `json:"purchase"`
}

// CreatorStats summarizes a creator's sales.
type CreatorStats struct {
	CreatorWallet       string `json:"creator_wallet"`
	TotalListings       int64  `json:"total_listings"`
	ActiveListings      int64  `json:"active_listings"`
	SoldListings        int64  `json:"sold_listings"`
	TotalEarnedLamports int64  `json:"total_earned_lamports"`
}

// CreateUser registers a new user.
func (c *Client) CreateUser(ctx context.Context, walletAddress string, username *string, role string) (*User, error) {
	reqBody := map[string]interface{}{
		"wallet_address": walletAddress,
		"role":           role,
	}
	if username != nil {
		reqBody["username"] = *username
	}

	var user User
	if err := c.postJSON(ctx, "/api/v1/users", reqBody, http.StatusCreated, &user); err != nil {
		return nil, err
	}

	c.logger.Debug("user registered", "address", walletAddress, "role", role)
	return &user, nil
}

// UpdateUser changes a user's username; a nil username clears it.
func (c *Client) UpdateUser(ctx context.Context, walletAddress string, username *string) (*User, error) {
	reqBody := map[string]interface{}{
		"username": username,
	}

	var user User
	path := "/api/v1/users/" + url.PathEscape(walletAddress)
	if err := c.doJSON(ctx, "PUT", path, reqBody, http.StatusOK, &user); err != nil {
		return nil, err
	}

	c.logger.Debug("username updated", "address", walletAddress)
	return &user, nil
}

// GetUser retrieves a user by wallet address.
func (c *Client) GetUser(ctx context.Context, walletAddress string) (*User, error) {
	var user User
	err := c.getJSON(ctx, "/api/v1/users/"+url.PathEscape(walletAddress), &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateListingParams contains the parameters for publishing a listing.
type CreateListingParams struct {
	Title         string
	Description   string
	PriceLamports int64
	CreatorWallet string
	Filename      string
	Content       io.Reader
}

// CreateListing publishes a new listing with its content.
func (c *Client) CreateListing(ctx context.Context, params CreateListingParams) (*Listing, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":          params.Title,
		"description":    params.Description,
		"price_lamports": strconv.FormatInt(params.PriceLamports, 10),
		"creator_wallet": params.CreatorWallet,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	fw, err := mw.CreateFormFile("file", params.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, params.Content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/listings", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("listing created", "listing_id", listing.ID, "creator", params.CreatorWallet)
	return &listing, nil
}

// GetListing retrieves a listing by id.
func (c *Client) GetListing(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	err := c.getJSON(ctx, "/api/v1/listings/"+url.PathEscape(id), &listing)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListListings retrieves listings, optionally filtered to a creator or to
// active listings only.
func (c *Client) ListListings(ctx context.Context, creator string, activeOnly bool) ([]Listing, error) {
	params := url.Values{}
	if creator != "" {
		params.Set("creator", creator)
	}
	if activeOnly {
		params.Set("active", "true")
	}

	path := "/api/v1/listings"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response struct {
		Listings []Listing `json:"listings"`
	}
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Listings, nil
}

// CreatePurchase opens a pending purchase for a listing.
func (c *Client) CreatePurchase(ctx context.Context, listingID, buyerWallet string) (*Purchase, error) {
	reqBody := map[string]interface{}{
		"listing_id":   listingID,
		"buyer_wallet": buyerWallet,
	}

	var purchase Purchase
	if err := c.postJSON(ctx, "/api/v1/purchases", reqBody, http.StatusCreated, &purchase); err != nil {
		return nil, err
	}

	c.logger.Debug("purchase created", "purchase_id", purchase.ID, "listing_id", listingID)
	return &purchase, nil
}

// GetPurchase retrieves a purchase by id.
func (c *Client) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	var purchase Purchase
	err := c.getJSON(ctx, "/api/v1/purchases/"+url.PathEscape(id), &purchase)
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListPurchases retrieves a buyer's purchase history.
func (c *Client) ListPurchases(ctx context.Context, buyerWallet string) ([]Purchase, error) {
	params := url.Values{}
	params.Set("buyer_wallet", buyerWallet)

	var response struct {
		Purchases []Purchase `json:"purchases"`
	}
	if err := c.getJSON(ctx, "/api/v1/purchases?"+params.Encode(), &response); err != nil {
		return nil, err
	}
	return response.Purchases, nil
}

// BuildTransaction requests an unsigned payment transaction for a purchase.
func (c *Client) BuildTransaction(ctx context.Context, purchaseID, senderAddress string) (*PaymentRequest, error) {
	reqBody := map[string]interface{}{
		"sender_address": senderAddress,
	}

	var payment PaymentRequest
	path := fmt.Sprintf("/api/v1/purchases/%s/transaction", url.PathEscape(purchaseID))
	if err := c.postJSON(ctx, path, reqBody, http.StatusOK, &payment); err != nil {
		return nil, err
	}

	c.logger.Debug("payment transaction built", "purchase_id", purchaseID, "blockhash", payment.Blockhash)
	return &payment, nil
}

// Verify submits a transaction signature for verification. The call blocks
// until the server's polling budget resolves the signature or runs out; it is
// idempotent and safe to re-invoke.
func (c *Client) Verify(ctx context.Context, purchaseID, signature string) (*VerifyResult, error) {
	reqBody := map[string]interface{}{
		"signature": signature,
	}

	var result VerifyResult
	path := fmt.Sprintf("/api/v1/purchases/%s/verify", url.PathEscape(purchaseID))
	if err := c.postJSON(ctx, path, reqBody, http.StatusOK, &result); err != nil {
		return nil, err
	}

	c.logger.Debug("purchase verified", "purchase_id", purchaseID, "status", result.Status)
	return &result, nil
}

// UnlockedListings retrieves the listings a buyer has unlocked through
// confirmed purchases.
func (c *Client) UnlockedListings(ctx context.Context, buyerWallet string) ([]Listing, error) {
	var response struct {
		Listings []Listing `json:"listings"`
	}
	path := fmt.Sprintf("/api/v1/buyers/%s/unlocked", url.PathEscape(buyerWallet))
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Listings, nil
}

// DownloadURL requests a signed URL for a listing's full-resolution content.
func (c *Client) DownloadURL(ctx context.Context, listingID, wallet string) (string, error) {
	params := url.Values{}
	params.Set("wallet", wallet)

	var response struct {
		DownloadURL string `json:"download_url"`
	}
	path := fmt.Sprintf("/api/v1/listings/%s/download?%s", url.PathEscape(listingID), params.Encode())
	if err := c.getJSON(ctx, path, &response); err != nil {
		return "", err
	}
	return response.DownloadURL, nil
}

// GetCreatorStats retrieves a creator's sales summary.
func (c *Client) GetCreatorStats(ctx context.Context, wallet string) (*CreatorStats, error) {
	var stats CreatorStats
	path := fmt.Sprintf("/api/v1/creators/%s/stats", url.PathEscape(wallet))
	if err := c.getJSON(ctx, path, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// getJSON issues a GET request and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON issues a POST request with a JSON body and decodes the response.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, wantStatus int, out interface{}) error {
	return c.doJSON(ctx, "POST", path, body, wantStatus, out)
}

// doJSON issues a request with a JSON body and decodes the response.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
