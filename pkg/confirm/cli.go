package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// CLIPrompter decides pending confirmations interactively. Anything
// that is not an explicit yes denies the command.
type CLIPrompter struct {
	coordinator *Coordinator
	reader      io.Reader
	writer      io.Writer
}

// NewCLIPrompter creates a prompter over the given streams.
func NewCLIPrompter(coordinator *Coordinator, reader io.Reader, writer io.Writer) *CLIPrompter {
	return &CLIPrompter{
		coordinator: coordinator,
		reader:      reader,
		writer:      writer,
	}
}

// Run decides confirmations until the context ends.
func (c *CLIPrompter) Run(ctx context.Context) error {
	for {
		pending, err := c.coordinator.Next(ctx)
		if err != nil {
			return err
		}
		if err := c.PromptOne(ctx, pending); err != nil {
			return err
		}
	}
}

// PromptOne displays a single pending confirmation and resolves it
// from user input.
func (c *CLIPrompter) PromptOne(ctx context.Context, pending *Pending) error {
	c.display(pending)

	inputChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.reader)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				errChan <- fmt.Errorf("failed to read input: %w", err)
				return
			}
			inputChan <- ""
			return
		}
		inputChan <- scanner.Text()
	}()

	select {
	case input := <-inputChan:
		approved := c.parseDecision(pending, input)
		return pending.Resolve(approved)

	case err := <-errChan:
		if resolveErr := pending.Resolve(false); resolveErr != nil {
			log.Warn().Err(resolveErr).Msg("Failed to resolve after input error")
		}
		return err

	case <-ctx.Done():
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  Confirmation abandoned")
		if err := pending.Resolve(false); err != nil {
			log.Warn().Err(err).Msg("Failed to resolve abandoned confirmation")
		}
		return ctx.Err()
	}
}

func (c *CLIPrompter) display(pending *Pending) {
	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.writer, "║              CONFIRMATION REQUIRED                             ║")
	fmt.Fprintln(c.writer, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.writer, "")
	fmt.Fprintf(c.writer, "  Tool:     %s\n", pending.Call.Name)
	fmt.Fprintf(c.writer, "  Question: %s\n", pending.Message)
	fmt.Fprintln(c.writer, "")
	fmt.Fprint(c.writer, "  Approve this action? [y/N]: ")
}

func (c *CLIPrompter) parseDecision(pending *Pending, input string) bool {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  Action APPROVED")
		log.Info().Str("tool", pending.Call.Name).Msg("Action approved via CLI")
		return true

	case "n", "no", "":
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  Action DENIED")
		log.Info().Str("tool", pending.Call.Name).Msg("Action denied via CLI")
		return false

	default:
		fmt.Fprintln(c.writer, "")
		fmt.Fprintf(c.writer, "  Invalid input: %s (defaulting to DENY)\n", input)
		log.Warn().
			Str("tool", pending.Call.Name).
			Str("input", input).
			Msg("Invalid confirmation input")
		return false
	}
}
