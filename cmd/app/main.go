package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/arbor/internal"
	pkgconfig "github.com/starford/arbor/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func tree(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.WriteTree(ctx, os.Stdout, cmd.Args().First(), opts...)
}

func match(ctx context.Context, cmd *cli.Command) error {
	fname := cmd.Args().First()
	if fname == "" {
		return fmt.Errorf("match: a dotted note name is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.WriteMatch(ctx, os.Stdout, fname, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "arbor",
		Usage:   "Hierarchical Markdown notes organised by dotted names and schemas",
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
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live reload",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
			{
				Name:      "tree",
				Usage:     "Print the note hierarchy, marking stubs",
				ArgsUsage: "[fname]",
				Action:    tree,
			},
			{
				Name:      "match",
				Usage:     "Print the schema a dotted name resolves to",
				ArgsUsage: "<fname>",
				Action:    match,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
