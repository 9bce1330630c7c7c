// Package wallet is the signing boundary. The agent never holds keys;
// a Wallet collaborator signs and submits Movement transactions and
// hands back the receipt.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Payload is an entry-function transaction to sign and submit.
type Payload struct {
	Function      string        `json:"function"`
	TypeArguments []string      `json:"type_arguments"`
	Arguments     []interface{} `json:"arguments"`
}

// Receipt is the submitted transaction's identity.
type Receipt struct {
	Hash string `json:"hash"`
}

// Wallet signs and submits a transaction payload.
type Wallet interface {
	SignAndSubmit(ctx context.Context, tx Payload) (Receipt, error)
}

// HTTPWallet submits payloads to a remote signer service that holds
// the key material and talks to the fullnode.
type HTTPWallet struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWallet creates a wallet backed by the signer at baseURL.
func NewHTTPWallet(baseURL string) (*HTTPWallet, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("signer URL is required")
	}
	return &HTTPWallet{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// SignAndSubmit posts the payload and waits for the receipt.
func (w *HTTPWallet) SignAndSubmit(ctx context.Context, tx Payload) (Receipt, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Receipt{}, fmt.Errorf("signer returned %d: %s", resp.StatusCode, string(raw))
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("failed to decode signer response: %w", err)
	}
	if receipt.Hash == "" {
		return Receipt{}, fmt.Errorf("signer response missing transaction hash")
	}

	log.Debug().
		Str("function", tx.Function).
		Str("hash", receipt.Hash).
		Msg("Transaction submitted")

	return receipt, nil
}

// StaticWallet is a canned Wallet for tests and dry runs.
type StaticWallet struct {
	Hash  string
	Err   error
	Calls []Payload
}

// SignAndSubmit records the payload and returns the canned receipt.
func (w *StaticWallet) SignAndSubmit(ctx context.Context, tx Payload) (Receipt, error) {
	w.Calls = append(w.Calls, tx)
	if w.Err != nil {
		return Receipt{}, w.Err
	}
	return Receipt{Hash: w.Hash}, nil
}
