// Package main is the radar relay: it accepts publishers over a raw TCP
// stream and fans their snapshots out to WebSocket subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/observability"
	"github.com/cory-johannsen/radar/internal/publisher"
)

const defaultConfigPath = "configs/relay.yaml"

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatalf("relay: %v", err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "relay live radar snapshots from publishers to browser subscribers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to configuration file",
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the relay server",
				Action: runServe,
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration as YAML",
				Action: runConfig,
			},
			{
				Name:  "demo",
				Usage: "publish a synthetic radar feed to a running relay",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: "127.0.0.1:7229", Usage: "relay publisher address"},
					&cli.StringFlag{Name: "map", Value: "de_dust2", Usage: "map name reported in snapshots"},
					&cli.DurationFlag{Name: "interval", Value: 100 * time.Millisecond, Usage: "time between snapshots"},
					&cli.DurationFlag{Name: "duration", Usage: "stop after this long (0 runs until interrupted)"},
				},
				Action: runDemo,
			},
		},
	}
}

// loadConfig reads the --config file. The default path may be absent, in
// which case built-in defaults and environment overrides apply.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	path := cmd.String("config")
	if !cmd.IsSet("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	app, err := initializeApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing relay: %w", err)
	}

	logger.Info("starting radar relay",
		zap.String("publisher_addr", cfg.Publisher.Addr()),
		zap.String("subscriber_addr", cfg.Subscriber.Addr()),
		zap.String("subscriber_path", cfg.Subscriber.Path),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
		zap.Duration("startup", time.Since(start)),
	)
	return app.Run(ctx)
}

// Run drives the lifecycle until shutdown and waits for every connection to
// leave the registry.
func (a *App) Run(ctx context.Context) error {
	if err := a.Lifecycle.Run(ctx); err != nil {
		return err
	}
	a.Registry.Wait()
	a.Logger.Info("relay stopped", zap.Any("stats", a.Registry.Stats()))
	return nil
}

func runConfig(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return config.Dump(output(cmd), cfg)
}

func runDemo(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := cmd.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	client, err := publisher.Dial(ctx, cmd.String("addr"), cfg.Publisher.WriteTimeout, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sid, err := client.StartSession(startCtx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	fmt.Fprintf(output(cmd), "session %s\n", sid)

	feed := publisher.NewFeed(cmd.String("map"), 10, cmd.Duration("interval"))
	if err := feed.Run(ctx, client, 0, logger); err != nil {
		return err
	}
	return client.Stop()
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
