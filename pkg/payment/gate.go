package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Imdavyking/PayperAI/internal/observability"
	"github.com/Imdavyking/PayperAI/internal/tracing"
)

// GateConfig wires a Gate.
type GateConfig struct {
	PayTo       string
	Facilitator Facilitator
	Consumed    ConsumedStore
	// Prices maps route patterns to their price. A route absent from
	// the table passes through unpriced.
	Prices map[string]RoutePrice
}

// Gate is HTTP middleware enforcing the x402 handshake on priced
// routes. Requests without a valid, fresh payment proof get a 402
// challenge; a verified proof is consumed exactly once before the
// wrapped handler runs.
type Gate struct {
	payTo       string
	facilitator Facilitator
	consumed    ConsumedStore

	mu     sync.RWMutex
	prices map[string]RoutePrice
}

// NewGate validates configuration and builds the middleware.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.PayTo == "" {
		return nil, fmt.Errorf("payTo address is required")
	}
	if cfg.Facilitator == nil {
		return nil, fmt.Errorf("facilitator is required")
	}
	if cfg.Consumed == nil {
		return nil, fmt.Errorf("consumed store is required")
	}

	observability.EnsureRegistered()

	return &Gate{
		payTo:       cfg.PayTo,
		facilitator: cfg.Facilitator,
		consumed:    cfg.Consumed,
		prices:      cfg.Prices,
	}, nil
}

// Price returns the configured price for a route.
func (g *Gate) Price(route string) (RoutePrice, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	price, ok := g.prices[route]
	return price, ok
}

// UpdatePrices swaps the price table. In-flight requests keep the
// price they were challenged with.
func (g *Gate) UpdatePrices(prices map[string]RoutePrice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices = prices
}

// Middleware wraps a handler for the given route pattern. The price is
// looked up per request so table updates take effect immediately.
func (g *Gate) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			price, priced := g.Price(route)
			if !priced {
				next.ServeHTTP(w, r)
				return
			}
			requirement := NewRequirement(route, g.payTo, price)
			ctx, span := tracing.StartSpan(
				r.Context(),
				"payperai.payment",
				"payment.gate",
				attribute.String("route", route),
			)
			defer span.End()
			r = r.WithContext(ctx)

			proof := r.Header.Get(HeaderPayment)
			if proof == "" {
				g.challenge(w, r, route, requirement, "Payment required")
				return
			}

			// Fast-path replay rejection before paying for a
			// facilitator round trip.
			if g.consumed.Seen(proof) {
				observability.RecordPaymentReplay()
				observability.RecordPaymentAudit(ctx, route, "payment_replayed", "failure", nil)
				g.challenge(w, r, route, requirement, "Payment proof already used")
				return
			}

			verifyStart := time.Now()
			result, err := g.facilitator.Verify(ctx, proof, requirement)
			if err != nil {
				log.Error().Err(err).Str("route", route).Msg("Payment verification failed")
				span.RecordError(err)
				g.challenge(w, r, route, requirement, "Payment verification unavailable")
				return
			}
			if !result.IsValid {
				log.Warn().
					Str("route", route).
					Str("reason", result.InvalidReason).
					Msg("Invalid payment proof")
				g.challenge(w, r, route, requirement, invalidReason(result))
				return
			}

			// Atomic consume: concurrent duplicates lose here and get
			// re-challenged, never a free ride.
			if err := g.consumed.Consume(proof); err != nil {
				if errors.Is(err, ErrAlreadyConsumed) {
					observability.RecordPaymentReplay()
					observability.RecordPaymentAudit(ctx, route, "payment_replayed", "failure", nil)
					g.challenge(w, r, route, requirement, "Payment proof already used")
					return
				}
				log.Error().Err(err).Str("route", route).Msg("Failed to record payment proof")
				span.RecordError(err)
				g.challenge(w, r, route, requirement, "Payment verification unavailable")
				return
			}

			observability.RecordPaymentSettled(route, time.Since(verifyStart))
			observability.RecordPaymentAudit(ctx, route, "payment_settled", "success", map[string]interface{}{
				"payer": result.Payer,
			})

			log.Info().
				Str("route", route).
				Str("payer", result.Payer).
				Msg("Payment settled")

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) challenge(w http.ResponseWriter, r *http.Request, route string, requirement Requirement, reason string) {
	observability.RecordPaymentChallenge(route, reason)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	body := Challenge{
		X402Version: X402Version,
		Error:       reason,
		Accepts:     []Requirement{requirement},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to write payment challenge")
	}
}

func invalidReason(result VerifyResult) string {
	if result.InvalidReason != "" {
		return result.InvalidReason
	}
	return "Payment proof invalid"
}
