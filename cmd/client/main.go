package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todosync/internal/client/engine"
	"todosync/internal/client/hostapp/sqlitehostapp"
	"todosync/internal/client/registry"
	"todosync/internal/client/snapshot"
	"todosync/internal/client/transport"
	"todosync/internal/config"
	"todosync/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "todosync-client",
		Short: "Bidirectional todo sync client",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to client config file (yaml/json/toml)")

	root.AddCommand(syncCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run or inspect sync cycles",
	}
	cmd.AddCommand(syncOnceCmd(), syncDaemonCmd(), syncDiagnoseCmd())
	return cmd
}

func syncOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, eng, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout+10*time.Second)
			defer cancel()

			outcome, err := eng.Run(ctx)
			if err != nil {
				return err
			}
			report(outcome)
			return nil
		},
	}
}

func syncDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run sync cycles on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, eng, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(cfg.SyncInterval)
			defer ticker.Stop()

			for {
				outcome, err := eng.Run(ctx)
				if err != nil {
					logging.Error("daemon: cycle failed", err)
				} else {
					report(outcome)
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func syncDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Load the snapshot read-only and report registry bijection violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return err
			}
			doc, err := snapshot.New(cfg.StatePath).Load()
			if err != nil {
				return err
			}
			dupServerIDs, dupLocalIDs := registry.Duplicates(doc.ServerIDToLocalID)
			if len(dupServerIDs) == 0 {
				fmt.Println("registry ok: no duplicate mappings found")
				return nil
			}
			fmt.Println("DuplicateMapping candidates:")
			for _, id := range dupLocalIDs {
				fmt.Printf("  localId %s is claimed by multiple serverIds\n", id)
			}
			for _, id := range dupServerIDs {
				fmt.Printf("  serverId %s\n", id)
			}
			return nil
		},
	}
}

func setup() (*config.ClientConfig, *engine.Engine, func(), error) {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := logging.Init(logging.Options{Development: cfg.Development, LogFile: cfg.LogFile}); err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}

	host, err := sqlitehostapp.Open(cfg.HostAppPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open host app: %w", err)
	}

	tport := transport.New(cfg.ServerURL, cfg.Token)
	eng := engine.New("state/sync.lock", cfg.StatePath, "state/conflicts.json", host, tport)

	closeFn := func() {
		_ = host.Close()
		logging.Sync()
	}
	return cfg, eng, closeFn, nil
}

func report(o *engine.Outcome) {
	if o.Skipped {
		fmt.Println("sync skipped: another cycle is already running")
		return
	}
	fmt.Printf("sync complete: pushed=%d deleted=%d conflicts=%d lastSyncedAt=%s\n",
		o.Pushed, o.Deleted, o.Conflicts, o.LastSyncedAt.Format(time.RFC3339))
	if o.Conflicts > 0 {
		fmt.Println("note: some changes were rejected by the server or need attention; see conflicts.json")
	}
}
