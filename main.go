package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "coopshooter error: %v\n", err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the directory containing config.yaml",
	EnvVars: []string{"COOPSHOOTER_CONFIG"},
	Value:   "./",
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "coopshooter"
	app.Usage = "two-player co-op shooter server"
	app.Commands = []*cli.Command{
		serveCommand(),
		botCommand(),
	}
	return app
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "run the game server",
		Description: "Accepts WebSocket clients, runs lobbies and steps every match at the configured tick rate.",
		Action:      serve,
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:  "addr",
				Usage: "HTTP listen address (overrides server.addr)",
			},
		},
	}
}

func loadRuntime(c *cli.Context) (*Config, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer SyncLogger()
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	var db *DB
	if cfg.Database.Path != "" {
		db, err = OpenDB(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
		}
		defer db.Close()
	}
	analytics := NewAnalytics(db)
	defer analytics.Stop()

	secret, err := LoadResumeSecret(cfg.Game.ResumeSecret, db)
	if err != nil {
		return err
	}

	metrics := &TickMetrics{}
	registry := NewLobbyRegistry(RegistryConfig{
		MaxLobbies: cfg.Game.MaxLobbies,
		TickRate:   cfg.Game.TickRate,
		Engine:     NewWorld,
		Resume:     NewResumeTokens(secret, cfg.Game.ResumeWindow),
		Analytics:  analytics,
	})
	hub := NewHub(cfg, registry, metrics, analytics)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	server := &http.Server{Addr: cfg.Server.Addr, Handler: SetupRoutes(hub, cfg, db)}
	serveErr := make(chan error, 1)
	go func() {
		Log.Infow("Server starting", "addr", cfg.Server.Addr, "tick_rate", cfg.Game.TickRate)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-hubDone
			return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
		}
	}

	Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		Log.Warnw("HTTP shutdown", "error", err)
	}
	<-hubDone
	return nil
}
