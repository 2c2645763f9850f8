package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/wppdesk/internal/config"
	"github.com/matheus3301/wppdesk/internal/credstore"
	"github.com/matheus3301/wppdesk/internal/daemon"
	"github.com/matheus3301/wppdesk/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskd",
		Short:         "Multi-session WhatsApp customer-service gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config.toml (default $DESK_CONFIG or <base_dir>/config.toml)")

	root.AddCommand(newServeCmd(), newPairCmd(), newSessionsCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Resolve(path)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon, restoring every paired session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app := fx.New(daemon.Module(daemon.Params{Config: cfg}))
			app.Run()
			return app.Err()
		},
	}
}

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions and their last persisted status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			creds := credstore.New(cfg.BaseDir)
			if _, err := os.Stat(creds.DBPath()); os.IsNotExist(err) {
				fmt.Println("No sessions found.")
				return nil
			}
			db, err := store.Open(creds.DBPath())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			list, err := db.ListSessions(context.Background())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tNUMBER\tCONNECTED")
			for _, s := range list {
				connected := "-"
				if s.ConnectedAt > 0 {
					connected = time.UnixMilli(s.ConnectedAt).Format(time.DateTime)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.DeviceNumber, connected)
			}
			return w.Flush()
		},
	}
}
