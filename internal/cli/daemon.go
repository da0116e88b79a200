package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/daemon"
)

var (
	daemonConfig    string
	daemonAuditLog  string
	daemonInbox     string
	daemonOutbox    string
	daemonState     string
	daemonPoll      bool
	daemonInterval  time.Duration
	daemonResultTTL time.Duration
)

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().StringVar(&daemonConfig, "config", "", "Path to engine config YAML")
	daemonCmd.Flags().StringVar(&daemonAuditLog, "audit-log", "", "Path to audit log JSONL file")
	daemonCmd.Flags().StringVar(&daemonInbox, "inbox", "", "Inbox directory for job files")
	daemonCmd.Flags().StringVar(&daemonOutbox, "outbox", "", "Outbox directory for result files")
	daemonCmd.Flags().StringVar(&daemonState, "state", "", "State directory (PID lock, processing, archive)")
	daemonCmd.Flags().BoolVar(&daemonPoll, "poll", false, "Poll the inbox instead of using inotify")
	daemonCmd.Flags().DurationVar(&daemonInterval, "poll-interval", 5*time.Second, "Inbox poll interval (with --poll)")
	daemonCmd.Flags().DurationVar(&daemonResultTTL, "result-ttl", 0, "Archive outbox results older than this (0 = default 7 days)")
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the inbox/outbox deliberation service",
	Long: "Watches an inbox directory for proposal job files, deliberates each one\n" +
		"through the full pipeline, and writes result files to the outbox.\n" +
		"A PID lock in the state directory keeps it single-instance; jobs found\n" +
		"mid-processing after a crash are failed and reported, never silently lost.",
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(daemonConfig, daemonAuditLog)
	if err != nil {
		return err
	}
	defer p.close()

	dirs := daemon.DefaultDirConfig()
	if daemonInbox != "" {
		dirs.Inbox = daemonInbox
	}
	if daemonOutbox != "" {
		dirs.Outbox = daemonOutbox
	}
	if daemonState != "" {
		dirs.State = daemonState
	}

	d, err := daemon.New(daemon.Config{
		Dirs:         dirs,
		Run:          p.driver.Run,
		PollMode:     daemonPoll,
		PollInterval: daemonInterval,
		ResultTTL:    daemonResultTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down daemon...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "conclave daemon watching %s\n", dirs.Inbox)
	fmt.Fprintf(os.Stderr, "Results: %s\n", dirs.Outbox)
	fmt.Fprintln(os.Stderr)

	return d.Run(ctx)
}
