package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/forgeworks/appforge/internal/maintenance"
	"github.com/forgeworks/appforge/internal/notify"
	"github.com/forgeworks/appforge/internal/progress"
	"github.com/forgeworks/appforge/tui"
	"github.com/forgeworks/appforge/web/api"
)

var (
	runsLimit   int
	watchServer string
	watchRun    string
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run PROMPT...",
		Short: "Generate a backend from a prompt and run it to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List generation runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)

	watchCmd := &cobra.Command{
		Use:   "watch RUN_ID",
		Short: "Watch a run's progress in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchServer, "server", "", "API server base URL")
	rootCmd.AddCommand(watchCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	prompt := strings.Join(args, " ")

	sink := progress.SinkFunc(func(e progress.Event) {
		switch e.Type {
		case progress.EventStageStart:
			fmt.Printf("==> %s\n", e.Stage)
		case progress.EventLoopIteration:
			fmt.Printf("    iteration %d %v\n", e.Attempt, e.Payload)
		case progress.EventRunComplete:
			fmt.Println("==> run complete")
		case progress.EventRunError:
			fmt.Printf("==> run failed: %v\n", e.Payload["reason"])
		}
	})

	orch, _, _, cleanup, err := buildOrchestrator(cfg, sink, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := orch.Execute(cmd.Context(), prompt)
	if run != nil {
		fmt.Printf("run %s: %s\n", run.ID, run.Status)
	}
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	hub := progress.NewHub()
	go hub.Run()
	defer hub.Stop()

	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)
	sink := progress.Tee(hub, notify.Sink(notifier))

	orch, store, blobs, cleanup, err := buildOrchestrator(cfg, sink, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	janitor := maintenance.NewJanitor(cfg.General.WorkspaceDir, cfg.Sandbox.WorkspaceTTL, logger)
	janitor.PruneBlobs(store, blobs, cfg.General.BlobRetention)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(store, orch, hub, addr, logger)

	fmt.Printf("AppForge API at http://%s\n", addr)
	return server.Start()
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tCREATED")
	for _, r := range runs {
		name := r.ProjectName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ID, name, r.Status, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := watchServer
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}

	events := make(chan progress.Event, 64)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go streamEvents(ctx, base+"/api/events", events)

	model := tui.NewModel(runID, events)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
