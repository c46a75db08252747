package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/debatehub/internal/auth"
	"github.com/hazyhaar/debatehub/internal/export"
	"github.com/hazyhaar/debatehub/internal/mcp"
	"github.com/hazyhaar/debatehub/internal/seed"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Complete every active debate whose end time has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newApp(cfg, newLogger(cfg.Log, os.Stderr))
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.engine.ResolveExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("resolving debates: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d debate(s)\n", n)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture users and debates into an empty database",
		RunE:  runSeed,
	}
	cmd.Flags().String("file", "", "YAML fixtures file (default: built-in fixtures)")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)

	var fixtures *seed.Fixtures
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		fixtures, err = seed.LoadFile(path)
	} else {
		fixtures, err = seed.Defaults()
	}
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	s := &seed.Seeder{
		DB:                  database,
		Hash:                a.HashPassword,
		StartingCredibility: cfg.Debate.StartingCredibility,
		Logger:              logger,
	}
	res, err := s.Apply(cmd.Context(), fixtures)
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s), %d debate(s)\n", res.Users, res.Debates)
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [debate-id]",
		Short: "Write anonymized JSONL for one debate, or for all completed debates",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("out", "o", "", "output file (default: stdout)")
	cmd.Flags().Int("limit", 1000, "max completed debates to export")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	exp := export.NewExporter(database)
	if len(args) == 1 {
		if err := exp.ExportDebate(cmd.Context(), w, args[0]); err != nil {
			return fmt.Errorf("exporting %s: %w", args[0], err)
		}
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		n, err := exp.ExportCompleted(cmd.Context(), w, limit)
		if err != nil {
			return fmt.Errorf("exporting completed debates: %w", err)
		}
		fmt.Fprintf(os.Stderr, "exported %d debate(s)\n", n)
	}
	return w.Flush()
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the debate tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			logger := newLogger(cfg.Log, os.Stderr)
			rt, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			logger.Info("mcp stdio server starting", "version", version)
			stdio := server.NewStdioServer(mcp.NewServer(rt.endpoints, version))
			return stdio.Listen(ctx, os.Stdin, os.Stdout)
		},
	}
}
