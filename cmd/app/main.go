package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pinpress/internal"
	"github.com/starford/pinpress/internal/publish"
	pkgconfig "github.com/starford/pinpress/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, cmd.String("default-config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func options(cmd *cli.Command, extra ...internal.Option) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return append([]internal.Option{internal.WithConfig(cfg), internal.WithVersion(version)}, extra...), nil
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

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

// openQuiet builds the pipeline for one-shot commands, logging to stderr so
// stdout stays clean for results.
func openQuiet(cmd *cli.Command) (*internal.App, error) {
	opts, err := options(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return nil, err
	}
	return internal.Open(opts...)
}

func readSource(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func publishFile(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: %s publish <file.md|->", cmd.Root().Name)
	}
	src, err := readSource(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	app, err := openQuiet(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	var rec any
	if id := cmd.String("update"); id != "" {
		markdown := string(src)
		edit := publish.Edit{Markdown: &markdown}
		if title := cmd.String("title"); title != "" {
			edit.Title = &title
		}
		rec, err = app.Service.Republish(ctx, id, edit, "")
	} else {
		rec, err = app.Service.Publish(ctx, publish.Input{Title: cmd.String("title"), Markdown: string(src)})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func history(ctx context.Context, cmd *cli.Command) error {
	app, err := openQuiet(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.Service.List(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(list)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tTITLE\tURL")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.UpdatedAt.Format(time.DateTime), r.Title, r.URL)
	}
	return tw.Flush()
}

func main() {
	cmd := &cli.Command{
		Name:    "pinpress",
		Usage:   "Publish Markdown as standalone HTML pages on IPFS and keep a history of publications",
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
				Name:    "default-config",
				Usage:   "Config file used when --config does not exist",
				Sources: cli.EnvVars("APP_DEFAULT_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the REST API and SSE server",
				Action: serve,
			},
			{
				Name:      "publish",
				Usage:     "Render and upload a Markdown file",
				ArgsUsage: "<file.md|->",
				Action:    publishFile,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Page title (default: front matter or first heading)"},
					&cli.StringFlag{Name: "update", Aliases: []string{"u"}, Usage: "Republish the record with this id instead of creating one"},
				},
			},
			{
				Name:   "history",
				Usage:  "List publications, newest first",
				Action: history,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print records as JSON"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
