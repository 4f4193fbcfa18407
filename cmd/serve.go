/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"contentfeed/config"
	"contentfeed/db"
	"contentfeed/language"
	"contentfeed/memstore"
	"contentfeed/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the contentfeed API",
		Description: `Starts the contentfeed HTTP server.

Serves the users, channels and contents collections from the SQLite database,
or from memory when --in-memory is given. Writes are pushed to clients of the
change streams. A seed file can be loaded before the server starts.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.BoolFlag{
				Name:    "in-memory",
				Usage:   "Keep documents in memory instead of SQLite",
				EnvVars: []string{"CONTENTFEED_IN_MEMORY"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Host to listen on",
				EnvVars: []string{"CONTENTFEED_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				EnvVars: []string{"CONTENTFEED_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated origins allowed by CORS",
				EnvVars: []string{"CONTENTFEED_ALLOW_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "languages",
				Usage:   "Comma separated ISO 639-1 codes detected in seeded content",
				EnvVars: []string{"CONTENTFEED_LANGUAGES"},
			},
			&cli.StringFlag{
				Name:    "seed",
				Usage:   "Seed file to load before serving",
				EnvVars: []string{"CONTENTFEED_SEED"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			bc := server.NewBroadcaster()

			var store server.Store
			if ctx.Bool("in-memory") {
				log.Info("Keeping documents in memory")
				mem := memstore.New()
				mem.OnChange(bc.Broadcast)
				store = memStore(mem)
			} else {
				database, err := db.Open(cfg.Database.Path)
				if err != nil {
					return err
				}
				defer database.Close()
				database.OnChange(bc.Broadcast)
				store = dbStore(database)
			}

			if path := ctx.String("seed"); path != "" {
				seed, err := config.LoadSeed(path)
				if err != nil {
					return err
				}
				if err := seedStore(ctx.Context, store, seed, language.NewDetector(cfg.Languages)); err != nil {
					return err
				}
			}

			app := server.Server(&server.ServerConfig{
				Store:        store,
				Broadcaster:  bc,
				AllowOrigins: cfg.Server.AllowOrigins,
				PingInterval: cfg.Server.PingInterval,
			})

			// Graceful shutdown
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			go func() {
				<-sigs
				log.Info("Gracefully shutting down...")
				bc.Shutdown()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Error shutting down server: %v", err)
				}
			}()

			addr := cfg.Address()
			log.Infof("Starting server on %s", addr)
			if err := app.Listen(addr); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
