package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferReceipt is the confirmed result of one payout transfer.
type TransferReceipt struct {
	Hash        string          `json:"hash"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
}

// PayoutGateway is the slice of the gateway the settlement engine needs.
// Transfers are non-idempotent external calls from the caller's perspective
// (a timeout does not guarantee the transfer didn't land), so every call
// carries a deterministic idempotency key.
type PayoutGateway interface {
	Transfer(ctx context.Context, walletRef, destination string, amount decimal.Decimal, idempotencyKey string) (TransferReceipt, error)
}

// PayoutClient talks to the payout gateway service, which custodies the
// per-tournament treasury wallets and executes on-chain transfers.
type PayoutClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewPayoutClient() *PayoutClient {
	baseURL := os.Getenv("PAYOUT_GATEWAY_URL")
	if baseURL == "" {
		log.Fatal("PAYOUT_GATEWAY_URL environment variable is required")
	}
	token := os.Getenv("PAYOUT_GATEWAY_TOKEN")
	if token == "" {
		log.Fatal("PAYOUT_GATEWAY_TOKEN environment variable is required")
	}

	return &PayoutClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateWallet provisions a fresh treasury wallet for one tournament and
// returns its opaque reference and funding address.
func (c *PayoutClient) CreateWallet(ctx context.Context) (walletRef, address string, err error) {
	var out struct {
		WalletRef string `json:"wallet_ref"`
		Address   string `json:"address"`
	}
	if err := c.post(ctx, "/v1/wallets", nil, "", &out); err != nil {
		return "", "", fmt.Errorf("failed to create treasury wallet: %w", err)
	}
	return out.WalletRef, strings.ToLower(out.Address), nil
}

// Transfer moves funds out of the treasury wallet and waits for on-chain
// confirmation before returning. Transfers within one settlement run are
// issued strictly sequentially against the single funding wallet, so nonce
// ordering is never contested.
func (c *PayoutClient) Transfer(ctx context.Context, walletRef, destination string, amount decimal.Decimal, idempotencyKey string) (TransferReceipt, error) {
	body := map[string]string{
		"wallet_ref":  walletRef,
		"destination": destination,
		"amount":      amount.String(),
		"asset":       "eth",
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}
	if err := c.post(ctx, "/v1/transfers", body, idempotencyKey, &created); err != nil {
		return TransferReceipt{}, err
	}

	// An in-flight transfer is always awaited to confirmation; there is no
	// timeout-driven abort mid-transfer.
	for created.Status != "confirmed" {
		if created.Status == "failed" {
			return TransferReceipt{}, fmt.Errorf("transfer %s to %s failed on-chain", created.ID, destination)
		}
		select {
		case <-ctx.Done():
			return TransferReceipt{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		if err := c.get(ctx, "/v1/transfers/"+created.ID, &created); err != nil {
			return TransferReceipt{}, fmt.Errorf("failed polling transfer %s: %w", created.ID, err)
		}
	}

	return TransferReceipt{Hash: created.Hash, Destination: destination, Amount: amount}, nil
}

// VerifyEntryPayment checks that the client-supplied entry-fee transaction
// exists, paid the tournament treasury, and covers the entry fee. The ledger
// refuses to credit attempts until this passes.
func (c *PayoutClient) VerifyEntryPayment(ctx context.Context, txHash, treasuryAddress string, entryFee decimal.Decimal) error {
	var tx struct {
		Hash      string `json:"hash"`
		To        string `json:"to"`
		Value     string `json:"value"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := c.get(ctx, "/v1/transactions/"+txHash, &tx); err != nil {
		return fmt.Errorf("%w: %v", ErrEntryNotVerified, err)
	}
	if !tx.Confirmed {
		return fmt.Errorf("%w: transaction %s not confirmed", ErrEntryNotVerified, txHash)
	}
	if !strings.EqualFold(tx.To, treasuryAddress) {
		return fmt.Errorf("%w: transaction %s paid %s, expected treasury %s", ErrEntryNotVerified, txHash, tx.To, treasuryAddress)
	}
	value, err := decimal.NewFromString(tx.Value)
	if err != nil || value.LessThan(entryFee) {
		return fmt.Errorf("%w: transaction %s value %s below entry fee %s", ErrEntryNotVerified, txHash, tx.Value, entryFee)
	}
	return nil
}

func (c *PayoutClient) post(ctx context.Context, path string, body any, idempotencyKey string, out any) error {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *PayoutClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Service-Token", c.Token)
	return c.do(req, out)
}

func (c *PayoutClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payout gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("payout gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
