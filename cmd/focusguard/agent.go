package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focusguard/internal/agent"
	"focusguard/internal/logging"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the daemon as the on-device agent",
	Long: `Commands for scripting or debugging the agent side of the protocol:
reporting the foreground app and watching overlay directives.`,
}

var agentForegroundCmd = &cobra.Command{
	Use:   "foreground <package>",
	Short: "Report the foreground app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentForeground,
}

var agentWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll overlay directives and print them",
	Long:  `Polls the daemon for overlay directives. With --ack each directive is acknowledged as dismissed right away.`,
	RunE:  runAgentWatch,
}

var (
	agentServerURL string
	agentAck       bool
	agentPoll      time.Duration
)

func init() {
	agentCmd.PersistentFlags().StringVar(&agentServerURL, "server", "", "Daemon base URL (default: from config)")
	agentWatchCmd.Flags().BoolVar(&agentAck, "ack", false, "Acknowledge directives as dismissed")
	agentWatchCmd.Flags().DurationVar(&agentPoll, "interval", time.Second, "Poll interval")

	agentCmd.AddCommand(agentForegroundCmd)
	agentCmd.AddCommand(agentWatchCmd)
}

func newAgentClient() (*agent.Client, *agent.ClientConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	clientCfg := agent.DefaultClientConfig()
	clientCfg.Token = cfg.Security.AgentToken
	clientCfg.ServerURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	if agentServerURL != "" {
		clientCfg.ServerURL = agentServerURL
	}
	if agentPoll > 0 {
		clientCfg.PollInterval = agentPoll
	}
	if err := clientCfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
	return agent.NewClient(clientCfg, logger), clientCfg, nil
}

func runAgentForeground(cmd *cobra.Command, args []string) error {
	client, _, err := newAgentClient()
	if err != nil {
		return err
	}
	if err := client.ReportForeground(cmd.Context(), args[0], time.Now()); err != nil {
		return err
	}
	fmt.Printf("Reported %s\n", args[0])
	return nil
}

func runAgentWatch(cmd *cobra.Command, args []string) error {
	client, clientCfg, err := newAgentClient()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(clientCfg.PollInterval)
	defer ticker.Stop()

	var last string
	for {
		directive, err := client.PollDirective(ctx)
		switch {
		case err != nil:
			fmt.Printf("poll failed: %v\n", err)
		case directive == nil:
			last = ""
		case directive.Handle != last:
			last = directive.Handle
			fmt.Printf("[%s] %s %s (rule %s, %d ms used)\n",
				directive.IssuedAt.Format(time.TimeOnly), directive.Decision,
				directive.PackageID, directive.Rule, directive.UsageMillis)
			if agentAck {
				if err := client.AckDismissed(ctx, directive.Handle); err != nil {
					fmt.Printf("ack failed: %v\n", err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
