package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VerifyResult is the facilitator's verdict on a payment proof.
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Facilitator verifies payment proofs. Verification is stateless; the
// gate owns replay protection.
type Facilitator interface {
	Verify(ctx context.Context, proof string, requirement Requirement) (VerifyResult, error)
}

// HTTPFacilitator verifies proofs against an external x402 facilitator
// service.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFacilitator creates a client for the facilitator at baseURL.
func NewHTTPFacilitator(baseURL string) (*HTTPFacilitator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("facilitator URL is required")
	}
	return &HTTPFacilitator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Verify submits the proof and requirement for verification.
func (f *HTTPFacilitator) Verify(ctx context.Context, proof string, requirement Requirement) (VerifyResult, error) {
	reqBody := map[string]interface{}{
		"x402Version":         X402Version,
		"paymentPayload":      proof,
		"paymentRequirements": requirement,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(data))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return VerifyResult{}, fmt.Errorf("facilitator error (status %d): %s", resp.StatusCode, string(body))
	}

	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to decode verify response: %w", err)
	}

	return result, nil
}
