package claimrace

import (
	"fmt"
	"os"

	"github.com/okian/movers/pkg/logger"
)

// SetupLogging initializes the global logger for the driver.
func SetupLogging(format string, verbose bool) error {
	if err := logger.InitWithFormat(format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`movers claim race
=================

Seeds workers and jobs on a running movers service, fires concurrent
self-claims at every job and checks that no job is granted twice.

Usage:
  go run ./cmd/claimrace [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -jobs int           Jobs to post (default 200)
  -workers int        Movers to register (default 100)
  -contenders int     Concurrent claims per job (default 8)
  -concurrency int    HTTP requests in flight (default CPU cores * 4)
  -timeout duration   HTTP request timeout (default 10s)
  -output string      Write the JSON report to this file
  -log-format string  text or json (default "text")
  -verbose            Enable debug logging
  -help               Show this help message

Exit status is 1 when a job was granted more than once.
`)
}
