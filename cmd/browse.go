/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"contentfeed/models"
	"contentfeed/state"
)

func browseCmd() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Page through a feed of a running server",
		Description: `Loads a feed page by page from a running contentfeed server.

By default the public content feed is shown. Use --channel to browse the
content of one channel, or --channels to browse public channels.

Prints each item as a JSON object on a single line and asks before loading
the next page, unless --all is given. Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			urlFlag(),
			&cli.BoolFlag{
				Name:  "channels",
				Usage: "Browse public channels instead of content",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Browse the content of this channel",
			},
			&cli.StringFlag{
				Name:  "scope",
				Usage: "Content visible when browsing a channel: public or owner",
				Value: string(state.ScopePublic),
			},
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Load every page without asking",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the feed items
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			c := newClient(cfg)
			all := ctx.Bool("all")

			if ctx.Bool("channels") {
				channels := state.NewChannelService(c.Collection(models.ChannelsCollection))
				defer channels.Close()
				return browse(ctx.Context, all, channelItemID,
					channels.GetAllPublic,
					channels.GetMorePublic,
					func() bool { return channels.State().State().Exhausted },
				)
			}

			contents := state.NewContentService(c.Collection(models.ContentsCollection), nil)
			defer contents.Close()

			if channelID := ctx.String("channel"); channelID != "" {
				scope, err := state.ParseScope(ctx.String("scope"))
				if err != nil {
					return err
				}
				return browse(ctx.Context, all, contentItemID,
					func(ctx context.Context) ([]models.Content, error) {
						return contents.GetAllByChannel(ctx, channelID, scope)
					},
					contents.GetMoreChannel,
					func() bool { return contents.State().State().ChannelExhausted },
				)
			}

			return browse(ctx.Context, all, contentItemID,
				contents.GetAllPublic,
				contents.GetMorePublic,
				func() bool { return contents.State().State().PublicExhausted },
			)
		},
	}
}

func contentItemID(c models.Content) string { return c.ID }

func channelItemID(c models.Channel) string { return c.ID }

// browse prints the first page and then keeps loading pages until the feed
// is exhausted or the user stops
func browse[T any](
	ctx context.Context,
	all bool,
	id func(T) string,
	first func(context.Context) ([]T, error),
	more func(context.Context) ([]T, error),
	exhausted func() bool,
) error {
	items, err := first(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	printed := printItems(items, id, seen)

	for !exhausted() {
		if !all {
			answer, err := prompt.New().Ask("Load more?").Choose([]string{"Yes", "No"})
			if err != nil {
				return err
			}
			if answer != "Yes" {
				return nil
			}
		}

		items, err = more(ctx)
		if err != nil {
			return err
		}
		printed += printItems(items, id, seen)
	}

	log.WithField("items", printed).Info("Reached the end of the feed")
	return nil
}

// printItems prints the items whose id is not in seen yet, marks them as
// seen and returns how many were printed. The feed may have shifted between
// pages, so position says nothing about what has been shown.
func printItems[T any](items []T, id func(T) string, seen map[string]bool) int {
	fresh := lo.Reject(items, func(item T, _ int) bool { return seen[id(item)] })
	for _, item := range fresh {
		seen[id(item)] = true
		printStdout(item)
	}
	return len(fresh)
}

func printStdout(v any) {
	// Print as single JSON string on a single line
	b, err := json.Marshal(v)
	if err == nil {
		fmt.Println(string(b))
	}
}
