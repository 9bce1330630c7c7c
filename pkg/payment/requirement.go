// Package payment implements the x402 payment gate: priced routes
// answer unpaid requests with a 402 challenge describing acceptable
// payments, verify submitted proofs against a facilitator, and admit
// each verified proof exactly once.
package payment

// Requirement describes one acceptable payment for a priced route.
type Requirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

// Challenge is the 402 response body.
type Challenge struct {
	X402Version int           `json:"x402Version"`
	Error       string        `json:"error"`
	Accepts     []Requirement `json:"accepts"`
}

// X402Version is the protocol version this gate speaks.
const X402Version = 1

// HeaderPayment carries the base64-encoded payment proof.
const HeaderPayment = "X-PAYMENT"

// DefaultAsset is the native MOVE coin type.
const DefaultAsset = "0x1::aptos_coin::AptosCoin"

// DefaultNetwork is the Movement Network identifier.
const DefaultNetwork = "movement"

// RoutePrice configures the price of one route.
type RoutePrice struct {
	Amount      string `json:"amount" mapstructure:"amount"`
	Description string `json:"description" mapstructure:"description"`
}

// NewRequirement builds the standard requirement for a route. Distinct
// prices live on distinct routes, so one route maps to one requirement.
func NewRequirement(route, payTo string, price RoutePrice) Requirement {
	return Requirement{
		Scheme:            "exact",
		Network:           DefaultNetwork,
		Asset:             DefaultAsset,
		PayTo:             payTo,
		MaxAmountRequired: price.Amount,
		Resource:          route,
		Description:       price.Description,
		MimeType:          "application/json",
		MaxTimeoutSeconds: 60,
	}
}
