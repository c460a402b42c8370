// Command codeindexd serves the workspace index and safe-edit engine,
// either as an MCP stdio server or as one-shot CLI operations for
// scripting and local debugging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/codeindexd/internal/config"
	"github.com/standardbeagle/codeindexd/internal/debug"
	"github.com/standardbeagle/codeindexd/internal/engine"
	"github.com/standardbeagle/codeindexd/internal/mcp"
	"github.com/standardbeagle/codeindexd/internal/search"
	"github.com/standardbeagle/codeindexd/internal/version"
)

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()
}

func bootstrapEngine(c *cli.Context) (*engine.Engine, zerolog.Logger, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("resolve root %q: %w", c.String("root"), err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}

	log := newLogger(c.Bool("verbose"))
	eng := engine.New(cfg, log)
	if _, cerr := eng.SetProjectPath(root); cerr != nil {
		return nil, log, fmt.Errorf("index %s: %w", root, cerr)
	}
	return eng, log, nil
}

func main() {
	app := &cli.App{
		Name:    "codeindexd",
		Usage:   "workspace code index and safe-edit engine",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "project root to index",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug-level logging",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "write hot-path trace output to stderr",
				EnvVars: []string{"CODEINDEXD_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.SetOutput(os.Stderr)
				debug.Enable(true)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			searchCommand(),
			refreshCommand(),
			rebuildCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the indexed project over the MCP stdio transport",
		Action: func(c *cli.Context) error {
			debug.StdioMode = true
			eng, log, err := bootstrapEngine(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				log.Info().Msg("shutdown signal received")
				cancel()
			}()

			srv := mcp.NewServer(eng, log)
			log.Info().Str("root", c.String("root")).Msg("serving MCP over stdio")
			return srv.Run(ctx)
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "run a one-shot search against the index and print matches",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: "text", Usage: "text, regex, symbol, references, definition, callers, implementations, hierarchy"},
			&cli.StringFlag{Name: "file-pattern", Usage: "restrict candidate files by glob"},
			&cli.BoolFlag{Name: "case-sensitive"},
			&cli.IntFlag{Name: "limit", Value: 100},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: codeindexd search <pattern>")
			}
			eng, _, err := bootstrapEngine(c)
			if err != nil {
				return err
			}
			res, cerr := eng.SearchCode(search.Query{
				Pattern:       c.Args().First(),
				Type:          search.Type(c.String("type")),
				FilePattern:   c.String("file-pattern"),
				CaseSensitive: c.Bool("case-sensitive"),
				Limit:         c.Int("limit"),
			})
			if cerr != nil {
				return cerr
			}
			for _, hit := range res.Matches {
				fmt.Printf("%s:%d: %s\n", hit.File, hit.Line, hit.Content)
			}
			fmt.Fprintf(os.Stderr, "%d matches in %.3fs\n", res.TotalCount, res.SearchTimeSeconds)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "incrementally update the index for changed files",
		Action: func(c *cli.Context) error {
			eng, _, err := bootstrapEngine(c)
			if err != nil {
				return err
			}
			res, cerr := eng.RefreshIndex()
			if cerr != nil {
				return cerr
			}
			fmt.Printf("added=%d updated=%d removed=%d in %.3fs\n", res.Added, res.Updated, res.Removed, res.UpdateTimeSeconds)
			return nil
		},
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "discard and rebuild the entire index from scratch",
		Action: func(c *cli.Context) error {
			eng, _, err := bootstrapEngine(c)
			if err != nil {
				return err
			}
			res, cerr := eng.FullRebuildIndex()
			if cerr != nil {
				return cerr
			}
			fmt.Printf("files=%d symbols=%d in %.3fs\n", res.FilesIndexed, res.SymbolsIndexed, res.RebuildTimeSeconds)
			return nil
		},
	}
}
