package wallet

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	transferFunction = "0x1::aptos_account::transfer"
	faFunction       = "0x1::primary_fungible_store::transfer"
	deployFunction   = "0x1::managed_coin::initialize"

	octasPerMove = 100_000_000
	octaDecimals = 8
)

// Actions binds approved commands to wallet submissions. Every method
// returns a user-facing outcome string and never an error: failures
// are part of the conversation, not the control flow.
type Actions struct {
	wallet Wallet
}

// NewActions creates the action set over the given wallet.
func NewActions(wallet Wallet) *Actions {
	return &Actions{wallet: wallet}
}

// SendMove transfers native MOVE to a recipient.
func (a *Actions) SendMove(ctx context.Context, args map[string]interface{}) string {
	recipient := stringArg(args, "recipientAddress")
	amount := stringArg(args, "amount")

	octas, err := toOctas(amount)
	if err != nil {
		return fmt.Sprintf("Error sending MOVE: %s", err)
	}

	receipt, err := a.wallet.SignAndSubmit(ctx, Payload{
		Function:  transferFunction,
		Arguments: []interface{}{recipient, octas},
	})
	if err != nil {
		log.Warn().Err(err).Str("recipient", recipient).Msg("MOVE transfer failed")
		return fmt.Sprintf("Error sending MOVE: %s", err)
	}

	return fmt.Sprintf("Sent %s MOVE to %s. Transaction hash: %s", amount, recipient, receipt.Hash)
}

// TransferFA transfers a fungible asset by its metadata address.
func (a *Actions) TransferFA(ctx context.Context, args map[string]interface{}) string {
	recipient := stringArg(args, "recipientAddress")
	amount := stringArg(args, "amount")
	token := stringArg(args, "tokenAddress")

	octas, err := toOctas(amount)
	if err != nil {
		return fmt.Sprintf("Error transferring fungible asset: %s", err)
	}

	receipt, err := a.wallet.SignAndSubmit(ctx, Payload{
		Function:      faFunction,
		TypeArguments: []string{"0x1::fungible_asset::Metadata"},
		Arguments:     []interface{}{token, recipient, octas},
	})
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("Fungible asset transfer failed")
		return fmt.Sprintf("Error transferring fungible asset: %s", err)
	}

	return fmt.Sprintf("Sent %s of %s to %s. Transaction hash: %s", amount, token, recipient, receipt.Hash)
}

// DeployMemeCoin initializes a new coin with the given identity.
func (a *Actions) DeployMemeCoin(ctx context.Context, args map[string]interface{}) string {
	name := stringArg(args, "name")
	symbol := stringArg(args, "symbol")
	supply := stringArg(args, "initialSupply")

	receipt, err := a.wallet.SignAndSubmit(ctx, Payload{
		Function:  deployFunction,
		Arguments: []interface{}{name, symbol, supply},
	})
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Memecoin deployment failed")
		return fmt.Sprintf("Error deploying memecoin: %s", err)
	}

	return fmt.Sprintf("Deployed memecoin %s (%s) with initial supply %s. Transaction hash: %s",
		name, symbol, supply, receipt.Hash)
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// toOctas converts a decimal MOVE amount to its integer subunit count.
// The decimal string is parsed digit-for-digit; going through float64
// would round amounts like "0.29" down a subunit.
func toOctas(amount string) (uint64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > octaDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", amount, octaDecimals)
	}

	wholePart, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	var fracPart uint64
	if frac != "" {
		fracPart, err = strconv.ParseUint(frac+strings.Repeat("0", octaDecimals-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", amount)
		}
	}

	if wholePart > (math.MaxUint64-fracPart)/octasPerMove {
		return 0, fmt.Errorf("amount %q overflows", amount)
	}

	octas := wholePart*octasPerMove + fracPart
	if octas == 0 {
		return 0, fmt.Errorf("amount must be positive, got %q", amount)
	}
	return octas, nil
}
