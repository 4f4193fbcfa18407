/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"contentfeed/client"
	"contentfeed/config"
	"contentfeed/db"
	"contentfeed/memstore"
	"contentfeed/server"
	"contentfeed/state"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Usage:   "SQLite database file location",
		EnvVars: []string{"CONTENTFEED_DATABASE"},
	}
}

func urlFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "url",
		Aliases: []string{"u"},
		Usage:   "Base URL of a running contentfeed server",
		EnvVars: []string{"CONTENTFEED_URL"},
	}
}

// loadConfig reads the configuration file and lets flags that were set on
// the command line override it
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("database") {
		cfg.Database.Path = ctx.String("database")
	}
	if ctx.IsSet("url") {
		cfg.Client.URL = ctx.String("url")
	}
	if ctx.IsSet("host") {
		cfg.Server.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}
	if ctx.IsSet("allow-origins") {
		cfg.Server.AllowOrigins = ctx.String("allow-origins")
	}
	if ctx.IsSet("languages") {
		cfg.Languages = strings.Split(ctx.String("languages"), ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.TomlConfig) *client.Client {
	log.WithField("url", cfg.Client.URL).Info("Using contentfeed server")
	return client.New(client.Config{
		BaseURL:      cfg.Client.URL,
		Timeout:      cfg.Client.Timeout,
		MaxRetryTime: cfg.Client.MaxRetryTime,
	})
}

func dbStore(database *db.DB) server.Store {
	return server.StoreFunc(func(name string) state.Collection {
		return database.Collection(name)
	})
}

func memStore(store *memstore.Store) server.Store {
	return server.StoreFunc(func(name string) state.Collection {
		return store.Collection(name)
	})
}

func clientStore(c *client.Client) server.Store {
	return server.StoreFunc(func(name string) state.Collection {
		return c.Collection(name)
	})
}
