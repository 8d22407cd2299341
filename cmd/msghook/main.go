package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/msghook/internal/api"
	"github.com/mattjoyce/msghook/internal/config"
	"github.com/mattjoyce/msghook/internal/doctor"
	"github.com/mattjoyce/msghook/internal/lock"
	"github.com/mattjoyce/msghook/internal/log"
	"github.com/mattjoyce/msghook/internal/message"
	"github.com/mattjoyce/msghook/internal/metrics"
	"github.com/mattjoyce/msghook/internal/storage"
	"github.com/mattjoyce/msghook/internal/store"
	"github.com/mattjoyce/msghook/internal/webhook"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "message":
		return runMessageNoun(rest)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("msghook version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`msghook - Signed message webhook receiver

Usage:
  msghook <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle
  config    Configuration and integrity
  message   Message delivery helpers

System Commands:
  system start      Start the HTTP service in foreground

Config Commands:
  config check      Validate configuration and readiness
  config lock       Write BLAKE3 checksums for the config file

Message Commands:
  message send      Sign and POST a message to a running instance

General:
  version           Show version information
  help              Show this help message

Use 'msghook <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runMessageNoun(args []string) int {
	if len(args) < 1 {
		printMessageNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printMessageNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "send":
		if hasHelpFlag(actionArgs) {
			printMessageSendHelp()
			return 0
		}
		return runMessageSend(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown message action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: msghook system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: msghook config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printMessageNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: msghook message <action> [flags]")
	fmt.Fprintln(w, "Actions: send")
}

func printSystemStartHelp() {
	fmt.Println("Usage: msghook system start [--config PATH] [--env-file PATH]")
	fmt.Println("Start the HTTP service in the foreground. Without a database and secret the")
	fmt.Println("service still starts, answering 503 on storage endpoints and readiness.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: msghook config check [--config PATH] [--env-file PATH] [--json] [--strict]")
	fmt.Println("Validate configuration and report whether the service would be ready.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: msghook config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Record BLAKE3 checksums of the config file in .checksums next to it.")
}

func printMessageSendHelp() {
	fmt.Println("Usage: msghook message send --from FROM --to TO [--text TEXT] [--id ID] [--ts TS]")
	fmt.Println("                            [--url URL] [--secret SECRET] [--config PATH] [--env-file PATH]")
	fmt.Println("Sign a message with the webhook secret and POST it.")
}

// --- ACTION IMPLEMENTATIONS ---

// loadConfig loads the env file and then the config at configPath, falling
// back to discovery when configPath is empty.
func loadConfig(configPath, envFile string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	if configPath == "" {
		configPath = config.Discover()
	}
	return config.Load(configPath)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	envFile := fs.String("env-file", ".env", "Path to a .env file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("msghook starting", "version", version, "service", cfg.Service.Name, "config", cfg.SourcePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open message store", "error", err)
		return 1
	}
	defer closeStore()

	apiServer, err := newServer(cfg, st, metrics.NewRegistry())
	if err != nil {
		logger.Error("failed to configure API server", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start(ctx)
	}()

	logger.Info("msghook running (press Ctrl+C to stop)", "listen", cfg.HTTP.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("API server failed", "error", err)
		return 1
	}

	logger.Info("msghook stopped")
	return 0
}

// openStore opens the message store when the configuration is complete,
// holding a PID lock beside the database file. An incomplete configuration
// yields a nil store and the service runs degraded.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.MessageStore, func(), error) {
	if !cfg.Ready() {
		logger.Warn("configuration incomplete, storage endpoints disabled",
			"database_configured", cfg.DatabasePath() != "",
			"secret_configured", cfg.Webhook.Secret != "",
		)
		return nil, func() {}, nil
	}

	dbPath := cfg.DatabasePath()
	if err := storage.ValidatePath(dbPath); err != nil {
		return nil, nil, err
	}
	var pidLock *lock.PIDLock
	if !storage.IsMemoryPath(dbPath) {
		var err error
		pidLock, err = lock.AcquirePIDLock(lock.PathFor(dbPath))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		_ = pidLock.Release()
		return nil, nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	logger.Info("database opened", "path", dbPath)

	cleanup := func() {
		_ = db.Close()
		_ = pidLock.Release()
	}
	return store.New(db), cleanup, nil
}

// newServer builds the API server from loaded configuration.
func newServer(cfg *config.Config, st api.MessageStore, registry *metrics.Registry) (*api.Server, error) {
	maxBody, err := cfg.Webhook.MaxBodyBytes()
	if err != nil {
		return nil, fmt.Errorf("webhook.max_body_size: %w", err)
	}
	apiConfig := api.Config{
		Listen:       cfg.HTTP.Listen,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Webhook: webhook.Config{
			Secret:          cfg.Webhook.Secret,
			SignatureHeader: cfg.Webhook.SignatureHeader,
			MaxBodySize:     maxBody,
		},
	}
	return api.New(apiConfig, st, registry, log.WithComponent("api")), nil
}

func runConfigCheck(args []string) int {
	var configPath, envFile string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		configPath = config.Discover()
		if configPath == "" {
			fmt.Fprintln(os.Stderr, "No config file found; pass --config PATH")
			return 1
		}
	}
	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		configPath = filepath.Join(configPath, "config.yaml")
	}

	report, err := config.Lock([]string{configPath}, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for name, hash := range report.Files {
			fmt.Printf("  HASH %s: %s\n", name, hash)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed (not written): %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ChecksumPath)
	}
	return 0
}

func runMessageSend(args []string) int {
	var configPath, envFile, url, secret, id, from, to, ts, text string
	var timeout time.Duration

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	fs.StringVar(&url, "url", "", "Webhook URL (default: derived from http.listen)")
	fs.StringVar(&secret, "secret", "", "Webhook secret (default: webhook.secret)")
	fs.StringVar(&id, "id", "", "Message id (default: random UUID)")
	fs.StringVar(&from, "from", "", "Sender address")
	fs.StringVar(&to, "to", "", "Recipient address")
	fs.StringVar(&ts, "ts", "", "Message timestamp (default: now, RFC 3339 UTC)")
	fs.StringVar(&text, "text", "", "Message text")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	if secret == "" {
		secret = cfg.Webhook.Secret
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "No webhook secret: set WEBHOOK_SECRET or pass --secret")
		return 1
	}
	if url == "" {
		url = webhookURL(cfg.HTTP.Listen)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}

	payload := message.Payload{MessageID: &id, From: &from, To: &to, Timestamp: &ts}
	if text != "" {
		payload.Text = &text
	}
	if _, err := payload.Message(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid message: %v\n", err)
		return 1
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	status, respBody, err := postSigned(ctx, url, cfg.Webhook.SignatureHeader, secret, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}

	fmt.Printf("%d %s\n", status, bytes.TrimSpace(respBody))
	if status < 200 || status > 299 {
		return 1
	}
	fmt.Printf("message_id: %s\n", id)
	return 0
}

// postSigned POSTs body with its HMAC signature and returns the response.
func postSigned(ctx context.Context, url, header, secret string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if header == "" {
		header = webhook.DefaultSignatureHeader
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, webhook.Sign(secret, body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// webhookURL derives the local webhook URL from a listen address.
func webhookURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/webhook"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/webhook"
}
