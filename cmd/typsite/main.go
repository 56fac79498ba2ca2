package main

import (
	"context"
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/typsite/internal"
	"github.com/starford/typsite/internal/apperr"
	"github.com/starford/typsite/internal/mcpserver"
)

var version = "dev"

func projectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "path",
			Aliases: []string{"p"},
			Usage:   "Directory to search upward from for typsite.yaml",
			Value:   ".",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Explicit path to the project config file",
			Sources: cli.EnvVars("TYPSITE_CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log at debug level",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "Log at trace level",
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, root, err := internal.LoadProject(cmd.String("path"), cmd.String("config"))
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithProjectRoot(root),
		internal.WithWatch(cmd.Bool("watch")),
		internal.WithServe(cmd.Bool("serve")),
		internal.WithIgnoreInitial(cmd.Bool("ignore-initial")),
		internal.WithVerbosity(cmd.Bool("verbose"), cmd.Bool("trace")),
		internal.WithReadyHook(func(url string) {
			fmt.Fprintf(os.Stderr, "Serving on %s\n", url)
		}),
	}

	return internal.Run(ctx, opts...)
}

func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, root, err := internal.LoadProject(cmd.String("path"), cmd.String("config"))
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to stderr.
	c, err := internal.Setup(cfg, root, os.Stderr, cmd.Bool("verbose"), cmd.Bool("trace"))
	if err != nil {
		return err
	}
	defer c.Close()

	return mcpserver.New(c.Site, c.Executor, c.Index, version).ServeStdio()
}

func printError(w io.Writer, err error) {
	layers := apperr.Layers(err)
	fmt.Fprintf(w, "Error: %s\n", layers[0])
	for _, l := range layers[1:] {
		fmt.Fprintf(w, "  Caused by: %s\n", l)
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "typsite",
		Usage:   "Build a static site from typst documents, optionally watching and serving it",
		Version: version,
		Action:  run,
		Flags: append(projectFlags(),
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Rebuild on file changes",
			},
			&cli.BoolFlag{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Serve the output with live reload (implies --watch)",
			},
			&cli.BoolFlag{
				Name:  "ignore-initial",
				Usage: "Skip the initial full build",
			},
		),
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve build tools over MCP on stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
