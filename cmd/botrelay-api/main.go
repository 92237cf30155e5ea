package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/botrelay/pkg/cache"
	"github.com/dukex/botrelay/pkg/cmd"
	"github.com/dukex/botrelay/pkg/config"
	"github.com/dukex/botrelay/pkg/events"
	"github.com/dukex/botrelay/pkg/log"
	"github.com/dukex/botrelay/pkg/wecom"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "botrelay-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Receive chat platform callbacks and serve streamed answers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://..., sqlite://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the answer cache (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML tuning file",
				Sources: cli.EnvVars("BOTRELAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:     "wecom-token",
				Usage:    "Callback token configured for the bot",
				Required: true,
				Sources:  cli.EnvVars("WECOM_TOKEN"),
			},
			&cli.StringFlag{
				Name:     "wecom-aes-key",
				Usage:    "43 character EncodingAESKey configured for the bot",
				Required: true,
				Sources:  cli.EnvVars("WECOM_AES_KEY"),
			},
			&cli.StringFlag{
				Name:    "wecom-receive-id",
				Usage:   "Receive id checked against decrypted payloads (skipped when empty)",
				Sources: cli.EnvVars("WECOM_RECEIVE_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing botrelay API")

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return err
	}

	crypt, err := wecom.NewCrypt(command.String("wecom-token"), command.String("wecom-aes-key"), command.String("wecom-receive-id"))
	if err != nil {
		return fmt.Errorf("failed to configure callback crypto: %w", err)
	}

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), cfg.Retry)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	answers, err := cmd.NewAnswerCache(ctx, logger, command.String("redis-url"), cfg.Cache.TTL)
	if err != nil {
		return err
	}

	defer func() {
		err := answers.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close answer cache", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	err = eventBus.Handle(events.QuestionFinishedEvent, cache.FinishedHandler(answers, logger))
	if err != nil {
		return fmt.Errorf("failed to register question finished handler: %w", err)
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	api := NewAPI(logger, store, answers, crypt, cfg.Messages.Placeholder)

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "API server stopped", "error", err)

		return err
	}

	return nil
}
