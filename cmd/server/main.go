package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/oauth2-provider/accessor"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/grant"
	"github.com/jrsteele09/oauth2-provider/internal/config"
	"github.com/jrsteele09/oauth2-provider/internal/metrics"
	"github.com/jrsteele09/oauth2-provider/provider"
	"github.com/jrsteele09/oauth2-provider/server"
	"github.com/jrsteele09/oauth2-provider/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	registry := clients.NewRegistry(clients.SourceForPath(c.GetClientConfigPath()))
	if err := registry.Load(); err != nil {
		return fmt.Errorf("loading clients: %w", err)
	}
	log.Info().Strs("clients", registry.IDs()).Msg("Clients registered")

	generator := token.NewGenerator(token.WithEntropyBytes(c.GetTokenEntropyBytes()))
	store := accessor.NewStore(generator)
	machine, err := grant.NewMachine(store, generator)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(store.Len)

	p, err := provider.New(registry, store, machine,
		provider.WithRealm(c.GetRealm()),
		provider.WithMetrics(collector),
	)
	if err != nil {
		return err
	}
	handler, err := server.New(c, p, server.WithMetrics(collector))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.RunJanitor(ctx, c.GetAuthCodeTimeout(), c.GetPurgeInterval())
	if limiter := handler.RateLimiter(); limiter != nil {
		go limiter.RunCleanup(ctx)
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
