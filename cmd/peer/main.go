package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/niconiahi/peercall/internal/config"
	"github.com/niconiahi/peercall/internal/negotiation"
	"github.com/niconiahi/peercall/internal/rtc"
	"github.com/niconiahi/peercall/internal/signaling"
	"github.com/niconiahi/peercall/lib/logger/sl"
	"github.com/niconiahi/peercall/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	var host, username string
	flag.StringVar(&host, "host", "", "session identity (the host participant's username)")
	flag.StringVar(&username, "username", "", "this participant's username")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	if host == "" || username == "" {
		log.Error("both -host and -username are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, host, username, log); err != nil && ctx.Err() == nil {
		log.Error("peer stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, host, username string, log *slog.Logger) error {
	conn, err := rtc.New(cfg.WebRTC.STUNServers)
	if err != nil {
		return err
	}
	defer conn.Close()

	machine := negotiation.New(host, username, conn, log)

	client, err := signaling.Dial(ctx, cfg.Signaling.URL, host, username, machine, log)
	if err != nil {
		return err
	}
	defer client.Close()

	conn.OnCandidate(func(candidate string) {
		if machine.AddLocalCandidate(candidate) {
			if err := client.SendEvents(); err != nil {
				log.Warn("failed to push candidate", sl.Err(err))
			}
		}
	})
	conn.OnGatheringComplete(func() {
		if machine.FinishGathering() {
			if err := client.SendEvents(); err != nil {
				log.Warn("failed to push gathered", sl.Err(err))
			}
		}
	})
	conn.OnConnectionStateChange(func(state string) {
		log.Info("connection state", slog.String("state", state))
	})

	log.Info("joined session",
		slog.String("host", host),
		slog.String("username", username),
		slog.Bool("is_host", machine.IsHost()),
	)

	return client.Run(ctx)
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
