package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// dateLayout is the flag format for the reporting window end.
const dateLayout = "2006-01-02"

// Config holds all application configuration. Filters and output mode are
// explicit here and passed down; no package carries mutable report state.
type Config struct {
	DBPath    string
	SourceURL string
	GroupID   int64
	ScannerID string

	WindowDays int
	WindowEnd  string // YYYY-MM-DD, empty means now

	FilterDuplicateIP bool
	IncludeHistory    bool

	OutputMode string // "text", "csv" or "pdf"
	ReportPath string // destination file for pdf output

	Serve bool
	Addr  string

	FetchTimeout time.Duration
	Debug        bool
}

// Load parses command line flags and environment variables to populate
// Config. Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	cfg.DBPath = getEnv("VMTRACK_DB", getDefaultDBPath())
	cfg.SourceURL = getEnv("VMTRACK_SOURCE", "http://127.0.0.1:3780/api")
	cfg.GroupID = getEnvInt("VMTRACK_GROUP", 0)
	cfg.ScannerID = getEnv("VMTRACK_SCANNER", "nexpose")
	cfg.Addr = getEnv("VMTRACK_ADDR", ":8080")

	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to compliance SQLite database")
	flag.StringVar(&cfg.SourceURL, "source", cfg.SourceURL, "Scan source API base URL")
	flag.Int64Var(&cfg.GroupID, "group", cfg.GroupID, "Asset group id to process")
	flag.StringVar(&cfg.ScannerID, "scanner", cfg.ScannerID, "Scanner id prefix for asset identities")
	flag.IntVar(&cfg.WindowDays, "window-days", 30, "Reporting window size in days")
	flag.StringVar(&cfg.WindowEnd, "window-end", "", "Window end date (YYYY-MM-DD, default now)")
	flag.BoolVar(&cfg.FilterDuplicateIP, "filter-dup-ip", false, "Suppress assets sharing an IP within a snapshot")
	flag.BoolVar(&cfg.IncludeHistory, "history", false, "Run the expensive trailing-history query for resolution times")
	flag.StringVar(&cfg.OutputMode, "output", "text", "Report output mode (text, csv or pdf)")
	flag.StringVar(&cfg.ReportPath, "report-file", "compliance-report.pdf", "Destination file for pdf output")
	flag.BoolVar(&cfg.Serve, "serve", false, "Keep serving the status API after the run")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Status API listen address")
	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", 5*time.Minute, "Timeout for a single scan-source fetch")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.Parse()

	return cfg
}

// Window resolves the configured reporting window bounds in UTC.
func (c *Config) Window() (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if c.WindowEnd != "" {
		parsed, err := time.ParseInLocation(dateLayout, c.WindowEnd, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid window end %q: %w", c.WindowEnd, err)
		}
		end = parsed
	}
	if c.WindowDays <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("window size must be positive, got %d days", c.WindowDays)
	}
	start := end.AddDate(0, 0, -c.WindowDays)
	return start, end, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home
// directory. Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "vmtrack.db"
	}

	dir := filepath.Join(home, ".vmtrack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .vmtrack directory, using current dir: %v", err)
		return "vmtrack.db"
	}

	return filepath.Join(dir, "vmtrack.db")
}
