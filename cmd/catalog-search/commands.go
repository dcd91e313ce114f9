package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/opac-search-client/internal/config"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run a search and browse the results interactively",
		ArgsUsage: "[key=value ...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Search criterion as key=value (repeatable)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			terms := append(c.StringSlice("query"), c.Args().Slice()...)
			query, err := parseQuery(terms)
			if err != nil {
				return err
			}
			return runSearch(ctx, searchOptions{
				configPath: c.String("config"),
				debug:      c.Bool("debug"),
				query:      query,
			}, os.Stdin, os.Stdout)
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveTemplate(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Printf("catalog-search %s\n", version)
			return nil
		},
	}
}
