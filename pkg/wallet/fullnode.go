package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultFullnodeURL is the Movement testnet fullnode REST endpoint.
const DefaultFullnodeURL = "https://testnet.bardock.movementnetwork.xyz/v1"

// Fullnode is a read-only Movement REST client backing the chain
// query tools.
type Fullnode struct {
	baseURL string
	client  *http.Client
}

// NewFullnode creates a client for the node at baseURL.
func NewFullnode(baseURL string) *Fullnode {
	if baseURL == "" {
		baseURL = DefaultFullnodeURL
	}
	return &Fullnode{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type transactionInfo struct {
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
	GasUsed  string `json:"gas_used"`
	Sender   string `json:"sender"`
}

type accountInfo struct {
	SequenceNumber string `json:"sequence_number"`
}

type coinStoreResource struct {
	Data struct {
		Coin struct {
			Value string `json:"value"`
		} `json:"coin"`
	} `json:"data"`
}

// TransactionSummary renders a one-line human summary of a committed
// transaction.
func (f *Fullnode) TransactionSummary(ctx context.Context, args map[string]interface{}) (string, error) {
	hash := stringArg(args, "hash")
	if hash == "" {
		return "", fmt.Errorf("transaction hash is required")
	}

	var tx transactionInfo
	if err := f.get(ctx, "/transactions/by_hash/"+hash, &tx); err != nil {
		return "", fmt.Errorf("failed to fetch transaction: %w", err)
	}

	status := "succeeded"
	if !tx.Success {
		status = fmt.Sprintf("failed (%s)", tx.VMStatus)
	}

	return fmt.Sprintf("Transaction %s summary: sender %s, status %s, gas used %s.",
		hash, tx.Sender, status, tx.GasUsed), nil
}

// AddressInfo renders a one-line summary of an account: MOVE balance
// and transaction count.
func (f *Fullnode) AddressInfo(ctx context.Context, args map[string]interface{}) (string, error) {
	address := stringArg(args, "address")
	if address == "" {
		return "", fmt.Errorf("address is required")
	}

	var account accountInfo
	if err := f.get(ctx, "/accounts/"+address, &account); err != nil {
		return "", fmt.Errorf("failed to fetch account: %w", err)
	}

	var store coinStoreResource
	balance := "0"
	err := f.get(ctx, "/accounts/"+address+"/resource/0x1::coin::CoinStore%3C0x1::aptos_coin::AptosCoin%3E", &store)
	if err == nil && store.Data.Coin.Value != "" {
		if octas, perr := strconv.ParseUint(store.Data.Coin.Value, 10, 64); perr == nil {
			balance = strconv.FormatFloat(float64(octas)/octasPerMove, 'f', -1, 64)
		}
	}

	txCount := account.SequenceNumber
	if txCount == "" {
		txCount = "0"
	}

	return fmt.Sprintf("Address %s info: Balance: %s MOVE, Transactions: %s", address, balance, txCount), nil
}

func (f *Fullnode) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fullnode returned %d: %s", resp.StatusCode, string(raw))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
