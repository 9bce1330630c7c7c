package docs

import (
	"fmt"
	"strings"
)

// quickAnswers maps lowercase substrings of common questions to canned
// answers served without touching the index.
var quickAnswers = map[string]string{
	"gas fees": "Movement uses the MoveVM with low gas costs. Average transaction costs are approximately 0.0001 MOVE. Gas is paid in MOVE tokens, the native currency of the Movement Network.",

	"fungible asset": "Fungible Assets (FA) are the token standard on Movement. To transfer FA tokens, use the primary_fungible_store::transfer function. MOVE tokens use a different transfer method (aptos_account::transfer).",

	"fungible assets": "Fungible Assets (FA) are the token standard on Movement. To transfer FA tokens, use the primary_fungible_store::transfer function. MOVE tokens use a different transfer method (aptos_account::transfer).",

	"movevm": "MoveVM is Movement's execution environment, based on the Move language originally developed by Meta/Diem. It's fast, secure, and uses resource-oriented programming. Movement is an Ethereum L2 that combines MoveVM with Ethereum's ecosystem.",

	"testnet": "Movement testnet (Bardock) RPC: https://aptos.testnet.bardock.movementlabs.xyz/v1. Faucet: https://faucet.testnet.bardock.movementlabs.xyz. Explorer: https://explorer.movementnetwork.xyz/?network=testnet",

	"move language": "Move is a resource-oriented programming language. Key features: resources can't be copied or dropped (must be explicitly destroyed), strong type safety, and formal verification support. Use 'module' to define smart contracts.",

	"deploy token": "To deploy a fungible asset token on Movement: 1) Use fungible_asset::create_primary_store_enabled_fungible_asset, 2) Specify name, symbol, decimals, 3) Mint initial supply with fungible_asset::mint. The token will have a deterministic address.",
}

// QuickAnswer returns the canned answer matching the query by substring,
// or false when the query has no quick answer.
func QuickAnswer(query string) (string, bool) {
	normalized := strings.ToLower(query)

	for key, answer := range quickAnswers {
		if strings.Contains(normalized, key) {
			formatted := fmt.Sprintf("**Quick Answer:**\n\n%s\n\n*For more details, I can search the full documentation.*", answer)
			return formatted, true
		}
	}

	return "", false
}
