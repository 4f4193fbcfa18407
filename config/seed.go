package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"contentfeed/models"
)

// TomlUser is a user to seed
type TomlUser struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Email    string `toml:"email"`
	PhotoURL string `toml:"photo_url"`
}

// TomlChannel is a channel to seed, stored under its owner's id
type TomlChannel struct {
	UserID      string   `toml:"user_id"`
	Key         string   `toml:"key"`
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Public      bool     `toml:"public"`
	Contents    []string `toml:"contents"`
}

// TomlContent is a content item to seed. A zero created_at means now.
type TomlContent struct {
	ID        string    `toml:"id"`
	ChannelID string    `toml:"channel_id"`
	Key       string    `toml:"key"`
	Title     string    `toml:"title"`
	Body      string    `toml:"body"`
	Public    bool      `toml:"public"`
	Draft     bool      `toml:"draft"`
	Language  string    `toml:"language"`
	CreatedAt time.Time `toml:"created_at"`
}

// TomlSeed is the content of a seed file
type TomlSeed struct {
	Users    []TomlUser    `toml:"users"`
	Channels []TomlChannel `toml:"channels"`
	Contents []TomlContent `toml:"contents"`
}

func LoadSeed(path string) (*TomlSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}

	var seed TomlSeed
	if err := toml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("error parsing seed file: %w", err)
	}

	for i, u := range seed.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
	}
	for i, c := range seed.Channels {
		if c.UserID == "" {
			return nil, fmt.Errorf("channels[%d]: user_id is required", i)
		}
	}
	for i, c := range seed.Contents {
		if c.ChannelID == "" {
			return nil, fmt.Errorf("contents[%d]: channel_id is required", i)
		}
	}
	return &seed, nil
}

func (u TomlUser) Model(now time.Time) models.User {
	return models.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		PhotoURL:  u.PhotoURL,
		CreatedAt: models.TimestampFromTime(now),
	}
}

func (c TomlChannel) Model(now time.Time) models.Channel {
	return models.Channel{
		ID:          c.UserID,
		UserID:      c.UserID,
		Key:         c.Key,
		Name:        c.Name,
		Description: c.Description,
		Public:      c.Public,
		Contents:    c.Contents,
		CreatedAt:   models.TimestampFromTime(now),
	}
}

func (c TomlContent) Model(now time.Time) models.Content {
	created := c.CreatedAt
	if created.IsZero() {
		created = now
	}
	return models.Content{
		ID:        c.ID,
		ChannelID: c.ChannelID,
		Key:       c.Key,
		Title:     c.Title,
		Body:      c.Body,
		Public:    c.Public,
		Draft:     c.Draft,
		Language:  c.Language,
		CreatedAt: models.TimestampFromTime(created),
	}
}
