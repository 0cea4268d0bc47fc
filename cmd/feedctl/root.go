package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/app"
	"github.com/johnrirwin/feeddash/internal/config"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
)

func rootApp() *cli.App {
	return &cli.App{
		Name:  "feedctl",
		Usage: "Fetch and inspect the feed dashboard from the command line",
		Description: `feedctl shares configuration and cached state with the dashboard
		server, so a fetch here shows up on the dashboard and vice versa.

		Flags can be set via environment variables, e.g.:

		--cache-backend => CACHE_BACKEND=redis
		--feeds => FEEDS_CONFIG_PATH=feeds.toml
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cache-backend",
				Usage:   "State backend: memory, file, redis or postgres",
				EnvVars: []string{"CACHE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "cache-file",
				Usage:   "State file for the file backend",
				EnvVars: []string{"CACHE_FILE"},
			},
			&cli.StringFlag{
				Name:    "feeds",
				Aliases: []string{"f"},
				Usage:   "Path to feeds.json or feeds.toml",
				EnvVars: []string{"FEEDS_CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:    "relay",
				Usage:   "Relay endpoint prefix",
				EnvVars: []string{"RELAY_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print JSON instead of a table",
			},
		},
		Commands: []*cli.Command{
			fetchCmd(),
			cachedCmd(),
			categoriesCmd(),
			themeCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return cli.ShowAppHelp(ctx)
		},
	}
}

// newApp wires the application from the environment plus global flags.
func newApp(ctx *cli.Context) (*app.App, error) {
	cfg := config.LoadEnv()
	if v := ctx.String("cache-backend"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := ctx.String("cache-file"); v != "" {
		cfg.Cache.FilePath = v
	}
	if v := ctx.String("feeds"); v != "" {
		cfg.Feeds.ConfigPath = v
	}
	if v := ctx.String("relay"); v != "" {
		cfg.Relay.Endpoint = v
	}

	logger := logging.NewWithWriter(logging.ParseLevel(ctx.String("log-level")), ctx.App.ErrWriter, cfg.Logging.Format)
	return app.NewWithLogger(cfg, logger)
}

func withApp(fn func(ctx *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Shutdown(context.Background())
		return fn(ctx, a)
	}
}

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a category and store the result",
		ArgsUsage: "[category]",
		Action: withApp(func(ctx *cli.Context, a *app.App) error {
			category := ctx.Args().First()
			if category == "" {
				category = a.DefaultCategory()
			}

			articles, err := a.Aggregator.Aggregate(ctx.Context, category)
			if errors.Is(err, aggregator.ErrEmptyResult) {
				fmt.Fprintln(ctx.App.Writer, presenter.EmptyMessage)
				return fmt.Errorf("fetch %s: %w", category, err)
			}
			if err != nil {
				return err
			}
			return printArticles(ctx, articles)
		}),
	}
}

func cachedCmd() *cli.Command {
	return &cli.Command{
		Name:  "cached",
		Usage: "Print the stored article list without fetching",
		Action: withApp(func(ctx *cli.Context, a *app.App) error {
			articles, ok, err := a.Articles.Read(ctx.Context)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(ctx.App.Writer, presenter.EmptyMessage)
				return nil
			}
			return printArticles(ctx, articles)
		}),
	}
}

func categoriesCmd() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List categories and their sources",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "sources", Aliases: []string{"s"}, Usage: "List each source"},
		},
		Action: withApp(func(ctx *cli.Context, a *app.App) error {
			w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
			for _, c := range a.Registry.Categories() {
				fmt.Fprintf(w, "%s\t%s\t%d\n", c.Name, presenter.CategoryLabel(c.Name), len(c.Sources))
				if ctx.Bool("sources") {
					for _, src := range c.Sources {
						fmt.Fprintf(w, "\t%s\t%s\n", src.Name, src.URL)
					}
				}
			}
			return w.Flush()
		}),
	}
}

func themeCmd() *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or change the dashboard theme",
		ArgsUsage: "[on|off|toggle]",
		Action: withApp(func(ctx *cli.Context, a *app.App) error {
			var (
				dark bool
				err  error
			)
			switch arg := ctx.Args().First(); arg {
			case "":
				dark, err = a.Theme.Dark(ctx.Context)
			case "on", "dark":
				dark, err = true, a.Theme.SetDark(ctx.Context, true)
			case "off", "light":
				dark, err = false, a.Theme.SetDark(ctx.Context, false)
			case "toggle":
				dark, err = a.Theme.Toggle(ctx.Context)
			default:
				return fmt.Errorf("unknown theme argument %q (want on, off or toggle)", arg)
			}
			if err != nil {
				return err
			}

			if dark {
				fmt.Fprintln(ctx.App.Writer, "dark")
			} else {
				fmt.Fprintln(ctx.App.Writer, "light")
			}
			return nil
		}),
	}
}

func printArticles(ctx *cli.Context, articles []models.Article) error {
	if ctx.Bool("json") {
		enc := json.NewEncoder(ctx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}

	cards := presenter.New(nil).Cards(articles)
	return writeTable(ctx.App.Writer, cards)
}

func writeTable(out io.Writer, cards []presenter.Card) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFEED\tTITLE\tLINK")
	for _, c := range cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Date, c.FeedName, c.Title, c.Link)
	}
	return w.Flush()
}
