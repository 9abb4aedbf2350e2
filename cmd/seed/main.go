package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/medrank/internal/seed"
	"github.com/okian/medrank/pkg/logger"
)

const runTimeout = 10 * time.Minute

func main() {
	var (
		addr    = flag.String("addr", seed.DefaultBaseURL, "Base URL of the service")
		doctors = flag.Int("doctors", seed.DefaultDoctors, "Number of doctors to generate")
		seedVal = flag.Uint64("seed", 1, "Generator seed")
		batch   = flag.Int("batch", seed.DefaultBatchSize, "Doctors per import request")
		workers = flag.Int("workers", seed.DefaultWorkers, "Concurrent import requests")
		profile = flag.String("profile", "", "Profile id to score under")
		timeout = flag.Duration("timeout", seed.DefaultTimeout, "HTTP request timeout")
		verify  = flag.Bool("verify", false, "Fetch the ranking report and check it")
		logFile = flag.String("log", "", "Also write logs to this file")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp(os.Stdout)
		return
	}

	closeLog, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logging:", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cfg := seed.Config{
		BaseURL:   *addr,
		Doctors:   *doctors,
		Seed:      *seedVal,
		BatchSize: *batch,
		Workers:   *workers,
		ProfileID: *profile,
		Timeout:   *timeout,
		Verify:    *verify,
	}
	if _, err := seed.Run(ctx, cfg, logger.Get()); err != nil {
		logger.Get().Error(ctx, "seed failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
}
