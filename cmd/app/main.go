package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/inkwell/internal"
	"github.com/starford/inkwell/internal/syncer"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := internal.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("dir"); dir != "" {
		cfg.Notes.Dir = dir
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runSync(kind string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		rep, err := internal.RunSync(ctx, kind, opts...)
		if rep.ID != "" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(rep)
		}
		if err != nil {
			return fmt.Errorf("%s failed: %w", kind, err)
		}
		return nil
	}
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "inkwell",
		Usage:   "Notebook-organised Markdown notes kept in sync through git",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Note directory, overrides notes.dir",
				Sources: cli.EnvVars("INKWELL_NOTES_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Archive, pull, push and exit",
				Action: runSync(syncer.KindSync),
			},
			{
				Name:   "archive",
				Usage:  "Commit local changes without contacting the remote",
				Action: runSync(syncer.KindArchive),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
