package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/botaas/flowengine/pkg/domain"
)

// Inbound is the part of the engine the REPL drives.
type Inbound interface {
	HandleInbound(ctx context.Context, in domain.Inbound) (*domain.ExecutionResult, error)
}

var (
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a78bfa")).Bold(true)
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#38bdf8"))
	effectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	endStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#34d399"))
	promptSymbol = lipgloss.NewStyle().Foreground(lipgloss.Color("#818cf8")).Render("> ")
)

// REPLOptions addresses the conversation.
type REPLOptions struct {
	BotID  domain.ID
	FlowID domain.ID
	UserID string
	// Quiet drops side-effect lines.
	Quiet bool
}

// RunREPL chats with a flow line by line until in is exhausted, the user
// types /quit, or ctx is done. Typing /reset starts the conversation over.
func RunREPL(ctx context.Context, eng Inbound, opts REPLOptions, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	sessionID := ""
	reset := 0

	send := func(text string) error {
		res, err := eng.HandleInbound(ctx, domain.Inbound{
			BotID:     opts.BotID,
			FlowID:    opts.FlowID,
			UserID:    opts.UserID,
			ChatID:    opts.UserID,
			SessionID: sessionID,
			Text:      text,
		})
		if err != nil {
			return err
		}
		render(out, res, opts.Quiet)
		return nil
	}

	newSession := func() {
		reset++
		sessionID = fmt.Sprintf("repl-%s-%s-%d", opts.BotID, opts.UserID, reset)
	}
	newSession()

	if err := send("/start"); err != nil {
		return err
	}

	for {
		fmt.Fprint(out, promptSymbol)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			newSession()
			line = "/start"
		}

		if err := send(line); err != nil {
			var lock *domain.SessionLockTimeoutError
			if errors.As(err, &lock) || errors.Is(err, domain.ErrInputTooLarge) {
				fmt.Fprintln(out, errorStyle.Render("! "+err.Error()))
				continue
			}
			return err
		}
	}
}

func render(out io.Writer, res *domain.ExecutionResult, quiet bool) {
	for _, r := range res.Responses {
		fmt.Fprintln(out, botStyle.Render("bot:"), r)
	}
	if len(res.QuickReplies) > 0 {
		buttons := make([]string, len(res.QuickReplies))
		for i, q := range res.QuickReplies {
			buttons[i] = replyStyle.Render("[" + q + "]")
		}
		fmt.Fprintln(out, "    "+strings.Join(buttons, " "))
	}
	if !quiet {
		for _, se := range res.SideEffectsSummary {
			line := fmt.Sprintf("  · %s %s (%s)", se.Type, se.Status, se.NodeID)
			if se.Detail != "" {
				line += ": " + se.Detail
			}
			fmt.Fprintln(out, effectStyle.Render(line))
		}
		for _, e := range res.Errors {
			fmt.Fprintln(out, errorStyle.Render("  ! "+e))
		}
	}
	if res.Ended {
		fmt.Fprintln(out, endStyle.Render("-- conversation ended, type anything to start again --"))
	}
}
