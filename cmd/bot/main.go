package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"github.com/glizzus/talkward/internal/config"
	"github.com/glizzus/talkward/internal/datalayer"
	"github.com/glizzus/talkward/internal/events"
	"github.com/glizzus/talkward/internal/handler"
	"github.com/glizzus/talkward/internal/session"
	"github.com/glizzus/talkward/internal/settings"
	"github.com/glizzus/talkward/internal/sfx"
	"github.com/glizzus/talkward/internal/stats"
	"github.com/glizzus/talkward/internal/translate"
	"github.com/glizzus/talkward/internal/tts"
	"github.com/glizzus/talkward/internal/voiceconn"
)

func buildRegistry(ctx context.Context, ttsConfig *config.TTSConfig) (*tts.Registry, error) {
	var providers []tts.Provider
	charsPerSecond := make(map[string]int)

	azure := tts.NewAzureProvider(ttsConfig.Azure, nil)
	providers = append(providers, azure)
	charsPerSecond[azure.Shortname()] = ttsConfig.Azure.CharsPerSecond

	google := tts.NewGoogleProvider(ttsConfig.Google, nil)
	providers = append(providers, google)
	charsPerSecond[google.Shortname()] = ttsConfig.Google.CharsPerSecond

	return tts.NewRegistry(ctx, charsPerSecond, providers...)
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	ctx := context.Background()

	pool, err := datalayer.NewPostgresPoolFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	botConfig, err := config.NewBotConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load bot config: %w", err)
	}

	ttsConfig, err := config.NewTTSConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load tts config: %w", err)
	}

	// An invalid provider set must never serve traffic; fail before the
	// gateway is even opened.
	registry, err := buildRegistry(ctx, ttsConfig)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	minioStorage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := minioStorage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure minio bucket: %w", err)
	}
	clips := sfx.NewLibrary(minioStorage)

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}()
	recorder := stats.NewRedisRecorder(redisClient)

	var translator translate.Translator = translate.Noop{}
	if ttsConfig.Translate.Enabled {
		translator = translate.NewGoogleTranslator(ttsConfig.Translate, nil)
	}

	store := settings.NewPostgresStore(pool)
	bus := events.NewBus()
	bus.SubscribeMessageDelivered(func(e events.MessageDeliveredEvent) {
		// Delivery events fire on the playback drain goroutine; record
		// off it so a slow redis never stalls the next queued item.
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.Record(recordCtx, e.GuildID, e.Characters); err != nil {
				slog.Warn("failed to record usage stats", "guildID", e.GuildID, "error", err)
			}
		}()
	})

	// The factory closes over dg, which is assigned below. Guild events only
	// arrive after the gateway opens, so the factory never sees it nil.
	var dg *discordgo.Session
	world := session.NewWorld(func(guildID string) *session.Session {
		return session.New(guildID, session.Deps{
			Registry:   registry,
			Settings:   store,
			Translator: translator,
			Clips:      clips,
			Bus:        bus,
			Transport:  voiceconn.NewDiscordTransport(dg),
		}, session.Config{
			NeglectTimeout:  botConfig.NeglectTimeout,
			NeglectMessages: botConfig.NeglectMessages,
			CharLimit:       botConfig.CharLimit,
		})
	})

	dg, err = handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready:             handler.ReadyLog,
		MessageCreate:     handler.MakeMessageCreateHandler(world),
		GuildCreate:       handler.MakeGuildCreateHandler(world),
		GuildDelete:       handler.MakeGuildDeleteHandler(world),
		InteractionCreate: handler.MakeInteractionCreateHandler(world, registry, recorder),
	})
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer func() {
		if err := dg.Close(); err != nil {
			slog.Warn("failed to close discord session", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	world.Shutdown(shutdownCtx)
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
