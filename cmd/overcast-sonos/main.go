package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overcast-sonos/internal/cache"
	"overcast-sonos/internal/config"
	"overcast-sonos/internal/metrics"
	"overcast-sonos/internal/overcast"
	"overcast-sonos/internal/probe"
	"overcast-sonos/internal/quirks"
	"overcast-sonos/internal/service"
	"overcast-sonos/internal/soap"
)

func main() {
	logger := log.New(os.Stdout, "overcast-sonos ", log.LstdFlags|log.Lmsgprefix)
	debug := log.New(io.Discard, "", 0)
	if config.Debug() {
		debug = log.New(os.Stdout, "overcast-sonos debug ", log.LstdFlags|log.Lmsgprefix)
	}

	username, password, err := config.Credentials()
	if err != nil {
		logger.Fatalf("configure account: %v", err)
	}

	baseURL, err := config.BaseURL()
	if err != nil {
		logger.Fatalf("configure overcast: %v", err)
	}

	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		logger.Fatalf("invalid listen address %q: %v", listenAddr, err)
	}

	timeout := config.HTTPTimeout()
	m := metrics.New()

	var overrides quirks.Source = quirks.Default()
	quirksFile, quirksEnabled, err := config.ResolveQuirksFile()
	if err != nil {
		logger.Fatalf("resolve quirks file: %v", err)
	}
	if quirksEnabled {
		store, err := quirks.NewStore(quirksFile, config.ReloadDebounce(), logger)
		if err != nil {
			logger.Fatalf("initialise quirks store: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Printf("error closing quirks store: %v", err)
			}
		}()
		overrides = store
	}

	opts := overcast.Options{
		BaseURL:   baseURL,
		HTTP:      &http.Client{Timeout: timeout},
		Overrides: overrides,
		Observer:  m,
		Logger:    logger,
	}
	if config.ProbeDuration() {
		opts.Prober = probe.New(&http.Client{Timeout: timeout}, logger)
	}

	client, err := overcast.New(opts)
	if err != nil {
		logger.Fatalf("initialise overcast client: %v", err)
	}

	loginCtx, cancelLogin := context.WithTimeout(context.Background(), timeout)
	err = client.Login(loginCtx, username, password)
	cancelLogin()
	if err != nil {
		logger.Fatalf("log in to overcast: %v", err)
	}
	logger.Printf("logged in to %s as %s", baseURL, username)

	episodes := cache.New(config.CacheSize())
	episodes.SetObserver(m)

	svc, err := service.New(service.Options{
		Repository: client,
		Cache:      episodes,
		MediaTypes: overrides,
		Recorder:   m,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("initialise service: %v", err)
	}

	handler := soap.New(soap.Options{
		Service: svc,
		Metrics: m.Handler(),
		Logger:  logger,
		Debug:   debug,
	})
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s (service endpoint: %s)", listenAddr, config.PublicURL(listenAddr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	logger.Println("shutdown complete")
}
