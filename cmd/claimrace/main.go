package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/movers/internal/claimrace"
)

const (
	defaultJobs        = 200
	defaultWorkers     = 100
	defaultContenders  = 8
	concurrencyFactor  = 4 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		jobs        = flag.Int("jobs", defaultJobs, "Jobs to post")
		workers     = flag.Int("workers", defaultWorkers, "Movers to register")
		contenders  = flag.Int("contenders", defaultContenders, "Concurrent claims per job")
		concurrency = flag.Int("concurrency", runtime.NumCPU()*concurrencyFactor, "HTTP requests in flight")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output      = flag.String("output", "", "Write the JSON report to this file")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		claimrace.ShowHelp()
		return
	}
	if *jobs < 1 || *workers < 1 || *contenders < 1 || *concurrency < 1 {
		os.Stderr.WriteString("jobs, workers, contenders and concurrency must be positive\n")
		os.Exit(2)
	}

	if err := claimrace.SetupLogging(*logFormat, *verbose); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &claimrace.Config{
		BaseURL:     *baseURL,
		NumJobs:     *jobs,
		NumWorkers:  *workers,
		Contenders:  *contenders,
		Concurrency: *concurrency,
		Timeout:     *timeout,
		OutputFile:  *output,
	}
	if _, err := claimrace.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("claim race failed: " + err.Error() + "\n")
		stop()
		cancel()
		os.Exit(1)
	}
}
