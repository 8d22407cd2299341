// Package doctor validates msghook configuration beyond what Load enforces.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/mattjoyce/msghook/internal/config"
	"github.com/mattjoyce/msghook/internal/storage"
)

// minSecretLength is the shortest webhook secret accepted without a warning.
const minSecretLength = 16

var headerTokenPattern = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+.^_|~-]+$`)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Ready    bool    `json:"ready"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config

	// checkFilesystem rejects database paths on network mounts.
	checkFilesystem func(path string) error
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, checkFilesystem: storage.ValidateFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Ready: d.cfg.Ready()}

	d.validateService(r)
	d.validateHTTP(r)
	d.validateDatabase(r)
	d.validateWebhook(r)
	d.warnUnlocked(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateService(r *Result) {
	if strings.TrimSpace(d.cfg.Service.Name) == "" {
		d.addWarning(r, "service", "service.name", "service.name is empty; logs will carry no service name")
	}
	if d.cfg.Service.LogLevel == "debug" {
		d.addWarning(r, "service", "service.log_level", "debug logging is enabled")
	}
}

// validateHTTP checks the listen address and timeouts.
func (d *Doctor) validateHTTP(r *Result) {
	host, port, err := net.SplitHostPort(d.cfg.HTTP.Listen)
	if err != nil {
		d.addError(r, "http", "http.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.HTTP.Listen, err))
		return
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		d.addError(r, "http", "http.listen", fmt.Sprintf("invalid port %q", port))
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "http", "http.listen",
			fmt.Sprintf("listening on all interfaces (%s); put msghook behind a reverse proxy or bind to 127.0.0.1", d.cfg.HTTP.Listen))
	}

	if d.cfg.HTTP.ReadTimeout == 0 {
		d.addWarning(r, "http", "http.read_timeout", "read_timeout is 0; slow clients can hold connections open")
	}
	if d.cfg.HTTP.WriteTimeout == 0 {
		d.addWarning(r, "http", "http.write_timeout", "write_timeout is 0; responses are never cut off")
	}
}

// validateDatabase checks the database URL and the filesystem it points at.
func (d *Doctor) validateDatabase(r *Result) {
	url := d.cfg.Database.URL
	if url == "" {
		d.addError(r, "readiness", "database.url",
			"database.url (or DATABASE_URL) is not set; storage endpoints will answer 503")
		return
	}
	if scheme, _, ok := strings.Cut(url, "://"); ok && scheme != "sqlite" {
		d.addError(r, "database", "database.url", fmt.Sprintf("unsupported database scheme %q (only sqlite)", scheme))
		return
	}

	path := d.cfg.DatabasePath()
	if path == "" {
		d.addError(r, "database", "database.url", fmt.Sprintf("database.url %q has no path", url))
		return
	}
	if err := storage.ValidatePath(path); err != nil {
		d.addError(r, "database", "database.url", err.Error())
		return
	}
	if storage.IsMemoryPath(path) {
		d.addWarning(r, "database", "database.url", "in-memory database; messages are lost on restart")
		return
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		d.addError(r, "database", "database.url", fmt.Sprintf("database path %q is a directory", path))
		return
	}
	if _, err := os.Stat(filepath.Dir(path)); errors.Is(err, os.ErrNotExist) {
		d.addWarning(r, "database", "database.url",
			fmt.Sprintf("directory %q does not exist; it will be created on start", filepath.Dir(path)))
	}
	if err := d.checkFilesystem(path); err != nil {
		d.addError(r, "database", "database.url", err.Error())
	}
}

// validateWebhook checks the shared secret and signature header.
func (d *Doctor) validateWebhook(r *Result) {
	secret := d.cfg.Webhook.Secret
	switch {
	case secret == "":
		d.addError(r, "readiness", "webhook.secret",
			"webhook.secret (or WEBHOOK_SECRET) is not set; storage endpoints will answer 503")
	case len(secret) < minSecretLength:
		d.addWarning(r, "webhook", "webhook.secret",
			fmt.Sprintf("webhook secret is shorter than %d bytes", minSecretLength))
	}

	if header := d.cfg.Webhook.SignatureHeader; header != "" && !headerTokenPattern.MatchString(header) {
		d.addError(r, "webhook", "webhook.signature_header", fmt.Sprintf("invalid header name %q", header))
	}

	if size, err := d.cfg.Webhook.MaxBodyBytes(); err == nil && size < 1024 {
		d.addWarning(r, "webhook", "webhook.max_body_size",
			fmt.Sprintf("max_body_size of %d bytes leaves little room for message text", size))
	}
}

// warnUnlocked warns when the config file has no integrity manifest entry.
func (d *Doctor) warnUnlocked(r *Result) {
	if d.cfg.SourcePath == "" {
		d.addWarning(r, "integrity", "", "no config file loaded; using environment only")
		return
	}

	manifest, err := config.LoadChecksums(filepath.Dir(d.cfg.SourcePath))
	if err != nil {
		d.addWarning(r, "integrity", "", fmt.Sprintf("config is not locked: %v", err))
		return
	}
	if !slices.Contains(manifest.LockedFiles(), filepath.Base(d.cfg.SourcePath)) {
		d.addWarning(r, "integrity", "",
			fmt.Sprintf("%s is not listed in %s; run 'msghook config lock'", filepath.Base(d.cfg.SourcePath), config.ChecksumFile))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
