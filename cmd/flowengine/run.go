package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/botaas/flowengine"
	"github.com/botaas/flowengine/internal/cli"
	"github.com/botaas/flowengine/pkg/adapters/logsink"
	"github.com/botaas/flowengine/pkg/adapters/memory"
	"github.com/botaas/flowengine/pkg/adapters/webhook"
	"github.com/botaas/flowengine/pkg/observability"
)

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#818cf8")).
	Padding(0, 1)

var runCmd = &cobra.Command{
	Use:   "run FLOW_FILE",
	Short: "Chat with a flow in the terminal",
	Long: `Loads a single flow file into memory and starts an interactive session.
Type /reset to start over and /quit to leave. Webhook calls are real; bans,
emails and owner notifications are only logged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		flow, err := cli.LoadFlowFile(args[0])
		if err != nil {
			return err
		}
		if flow.BotID == "" {
			flow.BotID = "local"
		}
		if flow.ID == "" {
			flow.ID = "flow"
		}
		flow.IsActive = true
		flow.IsDefault = true

		userID, _ := cmd.Flags().GetString("user")
		quiet, _ := cmd.Flags().GetBool("quiet")

		sink := logsink.New(logger)
		eng := flowengine.New(memory.NewFlowStore(flow), memory.NewStore(),
			flowengine.WithLogger(logger),
			flowengine.WithLifecycleHooks(observability.LogHooks(logger)),
			flowengine.WithMaxHops(cfg.Engine.MaxHops),
			flowengine.WithFallbackMessage(cfg.Engine.FallbackMessage),
			flowengine.WithErrorMessage(cfg.Engine.ErrorMessage),
			flowengine.WithRegexTimeout(cfg.Engine.RegexTimeout),
			flowengine.WithWebhookClient(webhook.New(
				webhook.WithTimeout(cfg.Webhook.Timeout),
				webhook.WithUserAgent(cfg.Webhook.UserAgent),
			)),
			flowengine.WithChatAdmin(sink),
			flowengine.WithMailer(sink),
			flowengine.WithOwnerNotifier(sink),
			flowengine.WithEventSink(sink),
		)

		if _, err := eng.Validate(flow); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		title := flow.Name
		if title == "" {
			title = string(flow.ID)
		}
		fmt.Fprintln(out, bannerStyle.Render(fmt.Sprintf("flowengine %s · %s", flowengine.Version, title)))

		return cli.RunREPL(cmd.Context(), eng, cli.REPLOptions{
			BotID:  flow.BotID,
			UserID: userID,
			Quiet:  quiet,
		}, os.Stdin, out)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("user", "terminal", "User id the conversation runs as")
	runCmd.Flags().BoolP("quiet", "q", false, "Hide side effects and diagnostics")
}
