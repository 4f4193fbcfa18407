/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"contentfeed/config"
	"contentfeed/db"
	"contentfeed/language"
	"contentfeed/models"
	"contentfeed/server"
	"contentfeed/state"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load users, channels and content from a seed file",
		Description: `Loads a TOML seed file into the database, or into a running
server when --url is given.

Users and channels that already exist are left as they are. Content is
written as given, items without an id get a fresh one on every run.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the seed file",
				Required: true,
				EnvVars:  []string{"CONTENTFEED_SEED"},
			},
			databaseFlag(),
			urlFlag(),
			&cli.StringFlag{
				Name:    "languages",
				Usage:   "Comma separated ISO 639-1 codes to detect in content without a language",
				EnvVars: []string{"CONTENTFEED_LANGUAGES"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			seed, err := config.LoadSeed(ctx.String("file"))
			if err != nil {
				return err
			}

			var store server.Store
			if ctx.IsSet("url") {
				store = clientStore(newClient(cfg))
			} else {
				fmt.Println("Database configured: ", cfg.Database.Path)
				database, err := db.Open(cfg.Database.Path)
				if err != nil {
					return err
				}
				defer database.Close()
				store = dbStore(database)
			}

			return seedStore(ctx.Context, store, seed, language.NewDetector(cfg.Languages))
		},
	}
}

func seedStore(ctx context.Context, store server.Store, seed *config.TomlSeed, detector *language.Detector) error {
	now := time.Now()

	users := state.NewUserService(store.Collection(models.UsersCollection))
	for _, u := range seed.Users {
		if _, err := users.GetOrCreate(ctx, u.Model(now)); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}

	channels := state.NewChannelService(store.Collection(models.ChannelsCollection))
	defer channels.Close()
	for _, c := range seed.Channels {
		if _, err := channels.GetOrCreate(ctx, c.Model(now)); err != nil {
			return fmt.Errorf("seed channel of %s: %w", c.UserID, err)
		}
	}

	contents := store.Collection(models.ContentsCollection)
	for _, c := range seed.Contents {
		item := c.Model(now)
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.Language == "" {
			item.Language = detector.Detect(item.Title + "\n" + item.Body)
		}
		record, err := item.ToRecord()
		if err != nil {
			return err
		}
		if err := contents.Set(ctx, record); err != nil {
			return fmt.Errorf("seed content %s: %w", item.ID, err)
		}
	}

	log.WithFields(log.Fields{
		"users":    len(seed.Users),
		"channels": len(seed.Channels),
		"contents": len(seed.Contents),
	}).Info("Seeded store")
	return nil
}
