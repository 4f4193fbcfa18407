/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"contentfeed/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing drafts that are old.

		Removes draft content older than --max-age from the database.
		Published and public content is never touched.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "max-age",
				Value:   90 * 24 * time.Hour,
				Usage:   "Remove drafts created longer ago than this",
				EnvVars: []string{"CONTENTFEED_MAX_AGE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Database configured: ", cfg.Database.Path)

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := database.Tidy(ctx.Context, time.Now().Add(-ctx.Duration("max-age")))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d drafts\n", n)
			return nil
		},
	}
}
