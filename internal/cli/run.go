package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-autoreply/internal/app"
	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/logging"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/store"
	appsync "github.com/nhle/mail-autoreply/internal/sync"
)

func newRunCmd(opts *options) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the polling loop",
		Long: `Start the polling loop.

With a terminal attached this opens the dashboard; the loop starts
enabled when loop.enabled is set. With --headless, or when stdout is not
a terminal, the loop starts enabled and each cycle is printed until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tui := !headless && isTerminal(os.Stdout)
			return runLoop(cmd.Context(), opts, tui, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "run without the dashboard")

	return cmd
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runLoop(ctx context.Context, opts *options, tui bool, out io.Writer) error {
	path := opts.resolvedConfigPath()
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}

	cleanup, err := logging.Setup(cfg.Log, cfg.Sentry, tui)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := openStore(cfg)
	if err != nil {
		logging.LogWarning("store_open", err, logrus.Fields{"path": cfg.Store.Path})
	}

	cycle := &autoreply.Cycle{
		Opener:     newOpener(cfg),
		Summarizer: newSummarizer(cfg),
		Notifier:   newNotifier(cfg),
	}
	// Keep the Recorder and Store interfaces nil rather than typed-nil.
	var archive store.Store
	if s != nil {
		defer s.Close()
		cycle.Recorder = s
		archive = s
	}

	sched := appsync.New(cycle, autoreply.SettingsFromConfig(cfg))
	logging.LogEvent("startup", logrus.Fields{
		"provider": cfg.Mail.Provider,
		"tui":      tui,
		"config":   path,
	})

	if !tui {
		return runHeadless(ctx, sched, path, out)
	}

	if cfg.Loop.Enabled {
		sched.SetEnabled(true)
	}

	p := tea.NewProgram(app.New(app.Deps{
		Scheduler:  sched,
		Store:      archive,
		Notifier:   cycle.Notifier,
		Config:     cfg,
		ConfigPath: path,
	}), tea.WithAltScreen())

	watch(path,
		func(c *model.AppConfig) { p.Send(app.ConfigReloadedMsg{Config: c}) },
		func(err error) { p.Send(app.ConfigReloadedMsg{Err: err}) },
	)

	_, err = p.Run()
	sched.Stop()
	return err
}

// runHeadless enables the loop and prints every cycle until ctx ends or
// the process is interrupted.
func runHeadless(ctx context.Context, sched *appsync.Scheduler, path string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watch(path,
		func(c *model.AppConfig) {
			sched.UpdateSettings(autoreply.SettingsFromConfig(c))
			logging.LogEvent("config_reloaded", logrus.Fields{"config": path})
		},
		func(err error) { logging.LogWarning("config_reload", err, logrus.Fields{"config": path}) },
	)

	sched.Start()
	defer sched.Stop()
	sched.SetEnabled(true)

	fmt.Fprintln(out, "Polling; press Ctrl+C to stop.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-sched.Results():
			printResult(out, res)
		}
	}
}

// watch starts a config watch. A missing file just means no reloads.
func watch(path string, onChange func(*model.AppConfig), onError func(error)) {
	if err := model.WatchConfig(path, onChange, onError); err != nil {
		logging.LogEvent("config_watch_disabled", logrus.Fields{"reason": err.Error()})
	}
}

// printResult writes one cycle outcome, oldest entry first.
func printResult(out io.Writer, res appsync.CycleResultMsg) {
	if res.Err != nil {
		hint := ""
		if res.CredentialError() {
			hint = " (check mailbox credentials)"
		}
		fmt.Fprintf(out, "check failed: %v%s\n", res.Err, hint)
		return
	}

	rep := res.Report
	for _, e := range rep.Entries {
		fmt.Fprintf(out, "[%s] %s | %s | %s\n", e.Clock(), e.Status, e.Subject, e.From)
	}
	for _, n := range rep.Notices {
		fmt.Fprintf(out, "  notice: %s\n", n)
	}

	next := "stopped"
	if !res.State.NextRun.IsZero() {
		next = res.State.NextRun.Format("15:04:05")
	}
	fmt.Fprintf(out, "checked %d, replied %d (total %d), next run %s\n",
		rep.Listed, rep.Replied, res.State.Replies, next)
}
