/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"contentfeed/models"
)

// watchCmd follows a change stream of a running server
func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Log all changes of a collection to the command line",
		Description: `Subscribe to the change stream of a collection on a running
contentfeed server and log every write to the command line.

Returns each change as a JSON object on a single line. Use a tool like jq to process
the output.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			urlFlag(),
			&cli.StringFlag{
				Name:    "collection",
				Value:   models.ContentsCollection,
				Usage:   "Collection to watch: users, channels or contents",
				EnvVars: []string{"CONTENTFEED_COLLECTION"},
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			watchCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			collection := newClient(cfg).Collection(ctx.String("collection"))
			err = collection.Changes(watchCtx, func(evt models.ChangeEvent) {
				printStdout(evt)
			})
			if errors.Is(err, context.Canceled) {
				log.Info("Stopping subscription")
				return nil
			}
			return err
		},
	}
}
