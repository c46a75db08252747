package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/debatehub/internal/api"
	"github.com/hazyhaar/debatehub/internal/auth"
	"github.com/hazyhaar/debatehub/internal/config"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/notify"
	"github.com/hazyhaar/debatehub/internal/verify"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	codes := verify.NewCodeStore(cfg.Verification.CodeTTL,
		verify.WithMaxAttempts(cfg.Verification.MaxAttempts),
		verify.WithLogger(logger.With("component", "verify")),
	)
	go codes.Sweep(ctx, cfg.Verification.SweepInterval)
	go engine.NewSweeper(rt.engine, cfg.Debate.ResolveInterval).Run(ctx)

	a := api.New(cfg, rt.db, auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin), rt.endpoints)
	a.SetVerification(codes, newMailer(cfg.Mail, rt))
	a.SetMetrics(rt.metrics)
	if rt.auditLog != nil {
		a.SetAuditLog(rt.auditLog)
	}
	a.SetLogger(logger.With("component", "api"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("debatehub listening", "version", version, "addr", cfg.Server.Addr, "database", cfg.Database.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newMailer(cfg config.MailConfig, rt *app) notify.Mailer {
	if cfg.SMTPHost == "" {
		rt.logger.Warn("mail.smtp_host not set, verification codes are logged instead of sent")
		return notify.LogMailer{Logger: rt.logger.With("component", "mail")}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}
