package tools

import "fmt"

// Builtin returns the Movement agent tool catalog.
func Builtin() []Definition {
	return []Definition{
		{
			Name:        "sendMove",
			Kind:        KindCommand,
			Description: "Send MOVE tokens from the user's wallet to another address",
			Parameters: []Parameter{
				{Name: "recipientAddress", Type: "string", Description: "Destination account address", Required: true},
				{Name: "amount", Type: "string", Description: "Amount of MOVE to send", Required: true},
			},
		},
		{
			Name:        "transferFA",
			Kind:        KindCommand,
			Description: "Transfer a fungible asset from the user's wallet to another address",
			Parameters: []Parameter{
				{Name: "recipientAddress", Type: "string", Description: "Destination account address", Required: true},
				{Name: "amount", Type: "string", Description: "Amount of the asset to transfer", Required: true},
				{Name: "tokenAddress", Type: "string", Description: "Fungible asset metadata address", Required: true},
			},
		},
		{
			Name:        "deployMemeCoin",
			Kind:        KindCommand,
			Description: "Deploy a new meme coin from the user's wallet",
			Parameters: []Parameter{
				{Name: "name", Type: "string", Description: "Token name", Required: true},
				{Name: "symbol", Type: "string", Description: "Token ticker symbol", Required: true},
				{Name: "initialSupply", Type: "string", Description: "Initial token supply", Required: true},
			},
		},
		{
			Name:        "searchMovementDocs",
			Kind:        KindQuery,
			Description: "Search the Movement Network documentation",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{Name: "detailed", Type: "boolean", Description: "Return longer excerpts", Default: false},
			},
		},
		{
			Name:        "txHashSummary",
			Kind:        KindQuery,
			Description: "Summarize an on-chain transaction by hash",
			Parameters: []Parameter{
				{Name: "hash", Type: "string", Description: "Transaction hash", Required: true},
			},
		},
		{
			Name:        "addressInfo",
			Kind:        KindQuery,
			Description: "Look up balances and metadata for an account address",
			Parameters: []Parameter{
				{Name: "address", Type: "string", Description: "Account address", Required: true},
			},
		},
	}
}

// NewBuiltinRegistry builds a registry pre-loaded with the Movement
// agent tools.
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, def := range Builtin() {
		if err := r.Register(def); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return r, nil
}
