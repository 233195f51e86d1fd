package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dropzone/internal/config"
	"dropzone/internal/handler"
	"dropzone/internal/logging"
	"dropzone/internal/network"
	"dropzone/internal/relay"
	"dropzone/internal/server"
	"dropzone/internal/storage"
)

const usage = "usage: dropzone [port] [--no-tls] [--flat]"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dropzone:", err)
		os.Exit(1)
	}
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if err := config.LoadDotEnv(cwd); err != nil {
		return err
	}

	cfg, err := config.Load(os.Args[1:], os.Getenv, cwd)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, usage)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := storage.New(cfg.UploadDir, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	ips, err := network.DiscoverLANAddresses()
	if err != nil {
		logger.Warn(ctx, "LAN address discovery incomplete", "err", err)
	}
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	urls := network.ShareURLs(cfg.Scheme(), ips, srv.Port())

	console := relay.Stdout()
	h := handler.New(sink, console, logger, handler.Options{
		MaxBodySize:    cfg.MaxBodySize,
		MaxMessageSize: cfg.MaxMessageSize,
		IdleTimeout:    cfg.IdleTimeout,
	}, handler.ShareInfo{
		Scheme:    cfg.Scheme(),
		Addresses: addrs,
		URLs:      urls,
	})

	if err := server.PrintBanner(console, server.Banner{
		Scheme:    cfg.Scheme(),
		Port:      srv.Port(),
		URLs:      urls,
		UploadDir: sink.Root(),
		QR:        true,
	}); err != nil {
		logger.Warn(ctx, "could not print banner", "err", err)
	}
	logger.Info(ctx, "listening", "addr", srv.Addr().String(), "tls", cfg.TLSEnabled, "uploads", sink.Root())

	err = srv.Run(ctx, server.Routes(h, logger), func(ctx context.Context) error {
		return sink.RunSweeper(ctx, cfg.SweepInterval, cfg.StagingMaxAge)
	})
	if err != nil {
		return err
	}

	logger.Info(context.Background(), "stopped")
	return nil
}
