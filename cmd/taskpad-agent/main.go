package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/radovskyb/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskpadhq/taskpad/internal/client"
	"github.com/taskpadhq/taskpad/internal/logging"
	"go.uber.org/zap"
)

const (
	watcherPollInterval = 500 * time.Millisecond

	resolutionManual     = "manual"
	resolutionKeepLocal  = "keep-local"
	resolutionLoadServer = "load-server"

	defaultSeedContent = "- welcome to taskpad\n- edit this file and it syncs on its own\n"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskpad-agent",
		Short: "Taskpad synchronization agent for a local task file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
		},
	}
	setupFlags(rootCmd)
	rootCmd.AddCommand(newHistoryCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	viper.SetEnvPrefix("TASKPAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cmd.PersistentFlags().String("server-url", "http://127.0.0.1:8080", "Base URL of the taskpad server")
	cmd.PersistentFlags().String("credential", "", "Shared sync credential")
	cmd.PersistentFlags().String("file", "todo.txt", "Path of the synchronized task file")
	cmd.PersistentFlags().String("state-file", "", "Path of the cached sync state (defaults next to the task file)")
	cmd.PersistentFlags().Duration("debounce", client.DefaultDebounceInterval, "Quiet period after an edit before pushing")
	cmd.PersistentFlags().Duration("poll-interval", client.DefaultPollInterval, "How often to check the server for remote changes")
	cmd.PersistentFlags().String("on-conflict", resolutionManual, "Conflict handling: manual, keep-local, or load-server")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	bindFlag(cmd, "agent.server_url", "server-url")
	bindFlag(cmd, "auth.credential", "credential")
	bindFlag(cmd, "agent.file", "file")
	bindFlag(cmd, "agent.state_file", "state-file")
	bindFlag(cmd, "agent.debounce", "debounce")
	bindFlag(cmd, "agent.poll_interval", "poll-interval")
	bindFlag(cmd, "agent.on_conflict", "on-conflict")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func newAPIClient() (*client.APIClient, error) {
	return client.NewAPIClient(client.APIClientConfig{
		ServerURL:  viper.GetString("agent.server_url"),
		Credential: viper.GetString("auth.credential"),
	})
}

func runAgent(ctx context.Context) error {
	resolution := viper.GetString("agent.on_conflict")
	switch resolution {
	case resolutionManual, resolutionKeepLocal, resolutionLoadServer:
	default:
		return fmt.Errorf("unknown conflict handling %q", resolution)
	}

	logger, err := logging.NewLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	apiClient, err := newAPIClient()
	if err != nil {
		return err
	}

	filePath := viper.GetString("agent.file")
	statePath := viper.GetString("agent.state_file")
	if statePath == "" {
		statePath = filePath + ".taskpad-state.json"
	}
	store, err := client.NewLocalStore(statePath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filePath, []byte(defaultSeedContent), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", filePath, err)
		}
		logger.Info("created task file", zap.String("path", filePath))
	} else if err != nil {
		return err
	}

	conflicts := make(chan client.ConflictState, 1)
	machine, err := client.NewMachine(client.MachineConfig{
		Transport:        apiClient,
		Store:            store,
		DebounceInterval: viper.GetDuration("agent.debounce"),
		PollInterval:     viper.GetDuration("agent.poll_interval"),
		Logger:           logger,
		OnApply: func(content string, timestamp int64) {
			if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
				logger.Error("failed to write adopted revision", zap.Error(err))
				return
			}
			logger.Info("adopted server revision", zap.Int64("timestamp", timestamp))
		},
		OnConflict: func(conflict client.ConflictState) {
			select {
			case conflicts <- conflict:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer machine.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reconcile with the server before watching for new edits. A client that
	// has never synced seeds its content under the sentinel timestamp so an
	// existing server document wins; otherwise edits made while the agent
	// was down go through the normal push path.
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	if snapshot := machine.Snapshot(); snapshot.Timestamp == 0 {
		machine.Seed(string(content))
	} else if string(content) != snapshot.Content {
		machine.Edit(string(content))
	}
	if err := machine.SyncNow(signalCtx); err != nil && !errors.Is(err, client.ErrConflictPending) {
		logger.Warn("initial sync failed", zap.Error(err))
	}

	fileWatcher := watcher.New()
	fileWatcher.SetMaxEvents(1)
	fileWatcher.FilterOps(watcher.Write)
	if err := fileWatcher.Add(filePath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filePath, err)
	}

	watchErr := make(chan error, 1)
	go func() {
		if err := fileWatcher.Start(watcherPollInterval); err != nil {
			watchErr <- err
		}
	}()
	defer fileWatcher.Close()

	pollErr := make(chan error, 1)
	go func() { pollErr <- machine.Run(signalCtx) }()

	logger.Info("agent started",
		zap.String("file", filePath),
		zap.String("server", viper.GetString("agent.server_url")))

	for {
		select {
		case <-signalCtx.Done():
			return nil
		case err := <-watchErr:
			return err
		case err := <-pollErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case event := <-fileWatcher.Event:
			content, err := os.ReadFile(event.Path)
			if err != nil {
				logger.Warn("failed to read task file", zap.Error(err))
				continue
			}
			machine.Edit(string(content))
		case err := <-fileWatcher.Error:
			logger.Warn("file watcher error", zap.Error(err))
		case conflict := <-conflicts:
			handleConflict(machine, conflict, resolution, logger)
		}
	}
}

func handleConflict(machine *client.Machine, conflict client.ConflictState, resolution string, logger *zap.Logger) {
	preview := client.ConflictPreview(conflict.LocalContent, conflict.ServerContent)
	logger.Warn("sync conflict",
		zap.Int64("local_timestamp", conflict.LocalTimestamp),
		zap.Int64("server_timestamp", conflict.ServerTimestamp),
		zap.String("diff", preview))

	switch resolution {
	case resolutionKeepLocal:
		if err := machine.ResolveKeepLocal(context.Background()); err != nil && !errors.Is(err, client.ErrConflictPending) {
			logger.Error("keep-local resolution failed", zap.Error(err))
			return
		}
		logger.Info("conflict resolved, local revision kept")
	case resolutionLoadServer:
		if err := machine.ResolveLoadServer(); err != nil {
			logger.Error("load-server resolution failed", zap.Error(err))
			return
		}
		logger.Info("conflict resolved, server revision adopted")
	default:
		fmt.Fprintf(os.Stderr,
			"sync conflict: the server holds a newer revision; rerun with --on-conflict=keep-local or --on-conflict=load-server to resolve\n%s\n",
			preview)
	}
}

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and restore archived revisions",
	}

	historyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived revisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := newAPIClient()
			if err != nil {
				return err
			}
			entries, err := apiClient.ListHistory(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived revisions")
				return nil
			}
			for _, entry := range entries {
				archivedAt := time.UnixMilli(entry.CreatedAt).UTC().Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", entry.ID, archivedAt)
			}
			return nil
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the content of one archived revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revisionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid revision id %q", args[0])
			}
			apiClient, err := newAPIClient()
			if err != nil {
				return err
			}
			content, err := apiClient.RevisionContent(cmd.Context(), revisionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the current document with an archived revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revisionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid revision id %q", args[0])
			}
			apiClient, err := newAPIClient()
			if err != nil {
				return err
			}
			content, err := apiClient.RevisionContent(cmd.Context(), revisionID)
			if err != nil {
				return err
			}
			if content == "" {
				return fmt.Errorf("revision %d not found", revisionID)
			}

			statePath := viper.GetString("agent.state_file")
			filePath := viper.GetString("agent.file")
			if statePath == "" {
				statePath = filePath + ".taskpad-state.json"
			}
			store, err := client.NewLocalStore(statePath)
			if err != nil {
				return err
			}
			machine, err := client.NewMachine(client.MachineConfig{
				Transport: apiClient,
				Store:     store,
			})
			if err != nil {
				return err
			}
			defer machine.Close()

			if err := machine.Restore(cmd.Context(), content); err != nil {
				return err
			}
			if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored revision %d\n", revisionID)
			return nil
		},
	})

	return historyCmd
}
