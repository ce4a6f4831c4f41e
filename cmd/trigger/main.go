package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ghpulse/internal/trigger"
	"github.com/okian/ghpulse/pkg/logger"
)

const defaultTimeout = 35 * time.Minute

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		accounts   = flag.String("accounts", "", "Comma separated GitHub logins")
		remove     = flag.Bool("remove", false, "Remove the accounts' stored data instead of running them")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write the JSON result to this file")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		trigger.ShowHelp(os.Stdout)
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &trigger.Config{
		BaseURL:    *baseURL,
		Accounts:   trigger.ParseAccounts(*accounts),
		Remove:     *remove,
		Timeout:    *timeout,
		OutputFile: *outputFile,
	}
	if err := trigger.Execute(ctx, cfg, os.Stdout); err != nil {
		os.Stderr.WriteString("trigger failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
