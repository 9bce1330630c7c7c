package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/Imdavyking/PayperAI/pkg/confirm"
	"github.com/Imdavyking/PayperAI/pkg/gateway"
	"github.com/Imdavyking/PayperAI/pkg/payment"
	"github.com/Imdavyking/PayperAI/pkg/tools"
	"github.com/Imdavyking/PayperAI/pkg/wallet"
)

var (
	chatServerURL string
	chatSessionID string
	chatPremium   bool
	chatProof     string
	chatSignerURL string
	chatFullnode  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running PayperAI gateway",
	Long: `Chat with a running PayperAI gateway from the terminal. Commands
the agent proposes (sending MOVE, deploying tokens) are confirmed here
before anything is signed; transactions go through your local signer,
never the gateway.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://localhost:8080", "gateway base URL")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session ID (generated when empty)")
	chatCmd.Flags().BoolVar(&chatPremium, "premium", false, "use the premium agent tier")
	chatCmd.Flags().StringVar(&chatProof, "proof", "", "x402 payment proof sent with each call")
	chatCmd.Flags().StringVar(&chatSignerURL, "signer", "http://localhost:8899", "local transaction signer URL")
	chatCmd.Flags().StringVar(&chatFullnode, "fullnode", "", "Movement fullnode URL")
	rootCmd.AddCommand(chatCmd)
}

// chatClient talks to the gateway's session API.
type chatClient struct {
	baseURL   string
	sessionID string
	premium   bool
	proof     string
	client    *http.Client
}

func (c *chatClient) turnRoute() string {
	if c.premium {
		return gateway.RouteAgentPremium
	}
	return gateway.RouteAgent
}

// turn posts a task. A 402 comes back as a challenge, not an error.
func (c *chatClient) turn(ctx context.Context, task string) (*gateway.TurnResponse, *payment.Challenge, error) {
	body, err := json.Marshal(gateway.TurnRequest{Task: task})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.turnRoute(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.HeaderSessionID, c.sessionID)
	if c.proof != "" {
		req.Header.Set(payment.HeaderPayment, c.proof)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var turn gateway.TurnResponse
		if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
			return nil, nil, fmt.Errorf("malformed turn response: %w", err)
		}
		return &turn, nil, nil

	case http.StatusPaymentRequired:
		var challenge payment.Challenge
		if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
			return nil, nil, fmt.Errorf("malformed payment challenge: %w", err)
		}
		return nil, &challenge, nil

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(raw))
	}
}

func (c *chatClient) postOutcomes(ctx context.Context, outcomes []string) error {
	requestID, err := gonanoid.New()
	if err != nil {
		return err
	}

	body, err := json.Marshal(gateway.OutcomesRequest{Outcomes: outcomes, RequestID: requestID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tool-results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.HeaderSessionID, c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

func (c *chatClient) clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/ai-user", nil)
	if err != nil {
		return err
	}
	req.Header.Set(gateway.HeaderSessionID, c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	sessionID := chatSessionID
	if sessionID == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return err
		}
		sessionID = generated
	}

	registry, err := tools.NewBuiltinRegistry()
	if err != nil {
		return err
	}

	coordinator := confirm.NewCoordinator()
	httpWallet, err := wallet.NewHTTPWallet(chatSignerURL)
	if err != nil {
		return err
	}
	actions := wallet.NewActions(httpWallet)
	dispatcher, err := confirm.NewDispatcher(confirm.DispatcherConfig{
		Registry:    registry,
		Coordinator: coordinator,
		Actions: map[string]confirm.Action{
			"sendMove":       actions.SendMove,
			"transferFA":     actions.TransferFA,
			"deployMemeCoin": actions.DeployMemeCoin,
		},
	})
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	prompter := confirm.NewCLIPrompter(coordinator, reader, os.Stdout)

	client := &chatClient{
		baseURL:   strings.TrimRight(chatServerURL, "/"),
		sessionID: sessionID,
		premium:   chatPremium,
		proof:     chatProof,
		client:    &http.Client{Timeout: 120 * time.Second},
	}

	fmt.Printf("PayperAI chat — session %s\n", sessionID)
	fmt.Println(`Type a task, "/clear" to reset the session, or "/exit" to quit.`)

	ctx := cmd.Context()
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		task := strings.TrimSpace(line)
		switch task {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := client.clear(ctx); err != nil {
				fmt.Printf("Failed to clear session: %s\n", err)
			} else {
				fmt.Println("Session cleared.")
			}
			continue
		}

		turn, challenge, err := client.turn(ctx, task)
		if err != nil {
			fmt.Printf("Error: %s\n", err)
			continue
		}
		if challenge != nil {
			printChallenge(challenge)
			continue
		}

		if turn.Content != "" {
			fmt.Println(turn.Content)
		}

		if len(turn.ToolCalls) == 0 {
			continue
		}

		outcomes := dispatchWithPrompts(ctx, dispatcher, prompter, coordinator, turn)
		for _, outcome := range outcomes {
			fmt.Println(outcome)
		}
		if err := client.postOutcomes(ctx, outcomes); err != nil {
			fmt.Printf("Failed to record outcomes: %s\n", err)
		}
	}
}

// dispatchWithPrompts runs the dispatcher in the background while this
// goroutine answers its confirmation prompts. Both sides share stdin,
// so prompting must stay on the REPL goroutine.
func dispatchWithPrompts(
	ctx context.Context,
	dispatcher *confirm.Dispatcher,
	prompter *confirm.CLIPrompter,
	coordinator *confirm.Coordinator,
	turn *gateway.TurnResponse,
) []string {
	outcomesCh := make(chan []string, 1)
	go func() {
		outcomesCh <- dispatcher.Dispatch(ctx, turn.ToolCalls)
	}()

	for {
		select {
		case outcomes := <-outcomesCh:
			return outcomes
		case pending := <-coordinator.Pendings():
			if pending.Resolved() {
				continue
			}
			if err := prompter.PromptOne(ctx, pending); err != nil {
				// The pending call was denied on the way out; keep
				// draining until the dispatcher finishes.
				continue
			}
		}
	}
}

func printChallenge(challenge *payment.Challenge) {
	fmt.Println("Payment required.")
	for _, req := range challenge.Accepts {
		fmt.Printf("  %s octas (%s) to %s on %s\n",
			req.MaxAmountRequired, req.Description, req.PayTo, req.Network)
	}
	fmt.Println(`Obtain a payment proof from your wallet and retry with --proof.`)
}
