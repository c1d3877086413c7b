package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/glizzus/talkward/internal/config"
	"github.com/glizzus/talkward/internal/datalayer"
	"github.com/glizzus/talkward/internal/settings"
	"github.com/glizzus/talkward/internal/sfx"
	"github.com/glizzus/talkward/internal/stats"
)

func newLibrary() (*sfx.Library, error) {
	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create minio storage: %w", err)
	}
	return sfx.NewLibrary(storage), nil
}

func newSettingsStore() (*settings.PostgresStore, error) {
	pool, err := datalayer.NewPostgresPoolFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return settings.NewPostgresStore(pool), nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	guildIDFlag := &cli.StringFlag{
		Name:     "guild-id",
		Usage:    "ID of the guild to operate on",
		Required: true,
	}

	app := &cli.App{
		Name:        "talkward-cli",
		Description: "A development CLI tool for administering talkward without Discord",
		Commands: []*cli.Command{
			{
				Name:  "sfx-add",
				Usage: "Transcode a local audio file and store it as a sound effect clip",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Name the clip will be triggered by",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to the audio file",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					library, err := newLibrary()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					f, err := os.Open(c.String("file"))
					if err != nil {
						return cli.Exit("Failed to open file: "+err.Error(), 1)
					}
					defer f.Close()

					if err := library.Add(c.Context, c.String("name"), f); err != nil {
						return cli.Exit("Failed to add clip: "+err.Error(), 1)
					}
					log.Println("Clip added successfully.")
					return nil
				},
			},
			{
				Name:  "settings-show",
				Usage: "Print the stored settings blob for a guild",
				Flags: []cli.Flag{guildIDFlag},
				Action: func(c *cli.Context) error {
					store, err := newSettingsStore()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					gs, err := store.Load(c.Context, c.String("guild-id"))
					if err != nil {
						return cli.Exit("Failed to load settings: "+err.Error(), 1)
					}

					out, err := json.MarshalIndent(gs, "", "  ")
					if err != nil {
						return cli.Exit("Failed to render settings: "+err.Error(), 1)
					}
					fmt.Println(string(out))
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "Show usage counters for a guild",
				Flags: []cli.Flag{guildIDFlag},
				Action: func(c *cli.Context) error {
					redisConfig, err := config.NewRedisConfigFromEnv()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					client := redis.NewClient(&redis.Options{
						Addr:     redisConfig.Addr,
						Password: redisConfig.Password,
						DB:       redisConfig.DB,
					})
					defer client.Close()

					recorder := stats.NewRedisRecorder(client)
					totals, err := recorder.Totals(c.Context, c.String("guild-id"))
					if err != nil {
						return cli.Exit("Failed to read stats: "+err.Error(), 1)
					}

					log.Printf("messages=%d characters=%d", totals.Messages, totals.Characters)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
