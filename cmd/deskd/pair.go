package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/matheus3301/wppdesk/internal/bus"
	"github.com/matheus3301/wppdesk/internal/credstore"
	"github.com/matheus3301/wppdesk/internal/lock"
	"github.com/matheus3301/wppdesk/internal/logging"
	"github.com/matheus3301/wppdesk/internal/sessions"
	"github.com/matheus3301/wppdesk/internal/store"
	"github.com/matheus3301/wppdesk/internal/wa"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPairCmd() *cobra.Command {
	var phone, name string
	cmd := &cobra.Command{
		Use:   "pair <session-id>",
		Short: "Link a new WhatsApp device by scanning a QR code in the terminal",
		Long: `Pair creates the session and renders each QR code the platform issues
until the phone scans one. With --phone a pairing code is printed as well.
The daemon must not be running on the same base directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			id := args[0]
			if err := credstore.ValidateID(id); err != nil {
				return err
			}
			if name == "" {
				name = id
			}

			creds := credstore.New(cfg.BaseDir)
			logger, err := logging.New(logging.Options{Path: creds.LogPath(), Level: cfg.LogLevel})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			lk, err := lock.Acquire(creds.BaseDir())
			var held *lock.LockHeldError
			if errors.As(err, &held) {
				return fmt.Errorf("deskd is running (pid %d); stop it before pairing", held.PID)
			}
			if err != nil {
				return err
			}
			defer func() { _ = lk.Release() }()

			db, err := store.Open(creds.DBPath())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if _, err := db.Migrate(); err != nil {
				return err
			}

			b := bus.New()
			events, unsub := b.Subscribe("session.", 16)
			defer unsub()
			go renderPairing(events)

			s := cfg.Sessions
			mgr := sessions.NewManager(sessions.Config{
				StartupTimeout:       s.StartupTimeout,
				HealthInterval:       s.HealthInterval,
				MaxReconnectAttempts: s.MaxReconnectAttempts,
				ReconnectBackoff:     s.ReconnectBackoff,
			}, wa.NewFactory(s.DeviceName, logger.Named("wa")), creds, db, b, sessions.NewRegistry(), nil, logger.Named("sessions"))
			defer mgr.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var opts []sessions.CreateOption
			if phone != "" {
				opts = append(opts, sessions.WithPairPhone(phone))
			}
			if err := mgr.CreateSession(ctx, id, name, opts...); err != nil {
				logger.Error("pairing failed", zap.String("session", id), zap.Error(err))
				return err
			}
			number := "unknown number"
			if sess, err := db.GetSession(ctx, id); err == nil && sess != nil && sess.DeviceNumber != "" {
				number = sess.DeviceNumber
			}
			fmt.Printf("Session %q paired as %s. Start the daemon with `deskd serve`.\n", id, number)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone number to request a pairing code for")
	cmd.Flags().StringVar(&name, "name", "", "display name of the session (default: the id)")
	return cmd
}

func renderPairing(events <-chan bus.Event) {
	for evt := range events {
		code, _ := evt.Payload.(string)
		switch evt.Kind {
		case bus.SessionQR:
			fmt.Println("Scan this QR code with WhatsApp > Linked devices:")
			qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
		case bus.SessionPairCode:
			fmt.Printf("Pairing code: %s\n", code)
		}
	}
}
