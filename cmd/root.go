/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "contentfeed",
		Usage: "Channels and content served as paginated, most recent first feeds",
		Description: `A small content platform. Users own a channel and publish
		content items to it. Public channels and public, non-draft content are
		served as feeds that load page by page, most recent first.

		Documents are stored in an SQLite database and exposed over an HTTP API.
		The browse and watch commands read feeds from a running server.

		Flags can generally be set via environment variables, e.g.:

		--database => CONTENTFEED_DATABASE=contentfeed.db
		--port => CONTENTFEED_PORT=8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "contentfeed.toml",
				Usage:   "Path to the configuration file, defaults apply when it does not exist",
				EnvVars: []string{"CONTENTFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level: trace, debug, info, warn or error",
				EnvVars: []string{"CONTENTFEED_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format: text or json",
				EnvVars: []string{"CONTENTFEED_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx.String("log-level"), ctx.String("log-format"))
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			seedCmd(),
			browseCmd(),
			watchCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}
