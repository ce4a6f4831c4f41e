package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
)

// File permission constants.
const (
	outputFilePermission = 0600
)

// ErrNoAccounts is returned when no account was given.
var ErrNoAccounts = errors.New("no accounts given")

// Config holds the options of one trigger invocation.
type Config struct {
	BaseURL    string        // Base URL of the service
	Accounts   []string      // Accounts to run or remove
	Remove     bool          // Remove the accounts instead of running them
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Optional file receiving the JSON result
}

// ParseAccounts splits a comma or whitespace separated account list.
func ParseAccounts(s string) []string {
	return watermark.Normalize(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}))
}

// Execute runs one trigger against the service and writes a summary to out.
func Execute(ctx context.Context, cfg *Config, out io.Writer) error {
	if len(cfg.Accounts) == 0 {
		return ErrNoAccounts
	}
	log := logger.Get().Named("trigger")
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	log.Info(ctx, "triggering",
		logger.String("baseURL", cfg.BaseURL),
		logger.Strings("accounts", cfg.Accounts),
		logger.Bool("remove", cfg.Remove))

	var (
		result any
		err    error
	)
	if cfg.Remove {
		res, rerr := client.Remove(ctx, cfg.Accounts)
		result, err = res, rerr
		if err == nil {
			fmt.Fprintf(out, "removed: %s\nnot found: %s\nfailed: %s\n",
				list(res.Removed), list(res.NotFound), list(res.Failed))
		}
	} else {
		res, rerr := client.Run(ctx, cfg.Accounts)
		result, err = res, rerr
		if err == nil {
			fmt.Fprintf(out, "run %s finished in %s\n", res.RunID, res.Duration)
			fmt.Fprintf(out, "window: %s .. %s\n", res.Since.Format(time.RFC3339), res.Until.Format(time.RFC3339))
			fmt.Fprintf(out, "repos: %d discovered, %d ingested, failed: %s\n", res.ReposDiscovered, res.ReposIngested, list(res.ReposFailed))
			fmt.Fprintf(out, "accounts failed: %s\n", list(res.AccountsFailed))
			fmt.Fprintf(out, "events: %d seen, %d written\n", res.EventsSeen, res.EventsWritten)
			fmt.Fprintf(out, "curated: %d profiles, %d repos, %d activity counters\n", res.Profiles, res.Repos, res.Activities)
		}
	}
	if err != nil {
		return err
	}

	if cfg.OutputFile != "" {
		if err := saveResult(cfg.OutputFile, result); err != nil {
			log.Warn(ctx, "failed to save result", logger.String("file", cfg.OutputFile), logger.Error(err))
		}
	}
	return nil
}

func saveResult(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, outputFilePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func list(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}

// ShowHelp prints usage information for the trigger tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `ghpulse trigger
===============

Triggers a pipeline run or an account removal on a running service and
prints the result.

Usage:
  go run ./cmd/trigger -accounts alice,bob [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -accounts string
        Comma separated GitHub logins
  -remove
        Remove the accounts' stored data instead of running them
  -timeout duration
        HTTP request timeout, must cover a full run (default 35m)
  -output string
        Write the JSON result to this file
  -help
        Show this help message
`)
}
