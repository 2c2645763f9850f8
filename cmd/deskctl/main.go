package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wppdesk/internal/config"
	"github.com/matheus3301/wppdesk/internal/credstore"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskctl",
		Short:         "Operator CLI for a running deskd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config.toml")
	root.PersistentFlags().String("socket", "", "daemon socket (default <base_dir>/deskd.sock)")
	root.PersistentFlags().Bool("json", false, "output in JSON format")
	root.AddCommand(newStatusCmd())
	return root
}

// sessionHealth is one row of `deskctl status`.
type sessionHealth struct {
	Session string `json:"session"`
	Status  string `json:"status"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [session-id...]",
		Short: "Probe the daemon, or the given sessions, over the health endpoint",
		Long: `Without arguments status reports whether deskd is serving. Each session
id is reported SERVING while connected and NOT_SERVING otherwise; ids the
daemon has never seen are reported UNKNOWN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			socketPath, err := socketPath(cmd)
			if err != nil {
				return err
			}
			conn, err := grpc.NewClient(
				"unix://"+socketPath,
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			)
			if err != nil {
				return fmt.Errorf("dial daemon: %w", err)
			}
			defer func() { _ = conn.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			services := args
			if len(services) == 0 {
				services = []string{""}
			}
			rows, err := check(ctx, healthpb.NewHealthClient(conn), services)
			if err != nil {
				return fmt.Errorf("cannot reach deskd at %s: %w", socketPath, err)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return outputJSON(rows)
			}
			for _, r := range rows {
				name := r.Session
				if name == "" {
					name = "deskd"
				}
				fmt.Printf("%-20s %s\n", name, r.Status)
			}
			return nil
		},
	}
}

func socketPath(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("socket"); s != "" {
		return s, nil
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return "", err
	}
	return credstore.New(cfg.BaseDir).SocketPath(), nil
}

func check(ctx context.Context, c healthpb.HealthClient, services []string) ([]sessionHealth, error) {
	rows := make([]sessionHealth, 0, len(services))
	for _, svc := range services {
		resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		switch {
		case status.Code(err) == codes.NotFound:
			rows = append(rows, sessionHealth{Session: svc, Status: healthpb.HealthCheckResponse_UNKNOWN.String()})
		case err != nil:
			return nil, err
		default:
			rows = append(rows, sessionHealth{Session: svc, Status: resp.Status.String()})
		}
	}
	return rows, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
