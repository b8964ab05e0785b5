package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the process-level configuration resolved from environment
// variables and command line flags. Runtime-tunable options live in Settings
// and are managed separately so the API can update them.
type Config struct {
	Addr            string
	DBPath          string
	GPSDHost        string
	GPSDPort        int
	APIUser         string
	APIPasswordHash string
	CORSOrigins     []string
	Devices         []string
	WebUIDist       string
	ExportDir       string
	OUIPath         string
	SettingsPath    string
	Debug           bool
	PassiveIface    string
	CapturePath     string
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("PW_ADDR", ":8000")
	cfg.DBPath = getEnv("PW_DB_PATH", getDefaultDBPath())
	cfg.GPSDHost = getEnv("PW_GPSD_HOST", "127.0.0.1")
	cfg.GPSDPort = getEnvInt("PW_GPSD_PORT", 2947)
	cfg.APIUser = getEnv("PW_API_USER", "admin")
	cfg.APIPasswordHash = getEnv("PW_API_PASSWORD_HASH", "")
	cfg.CORSOrigins = splitList(getEnv("PW_CORS_ORIGINS", ""))
	cfg.Devices = splitList(getEnv("PW_DEVICES", ""))
	cfg.WebUIDist = getEnv("PW_WEBUI_DIST", "")
	cfg.ExportDir = getEnv("SIGINT_EXPORT_DIR", getDefaultExportDir())
	cfg.OUIPath = getEnv("SIGINT_OUI_PATH", "")
	cfg.SettingsPath = getEnv("PW_CONFIG_PATH", DefaultSettingsPath())
	cfg.PassiveIface = getEnv("PW_PASSIVE_IFACE", "")

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	flag.StringVar(&cfg.GPSDHost, "gpsd-host", cfg.GPSDHost, "gpsd host")
	flag.IntVar(&cfg.GPSDPort, "gpsd-port", cfg.GPSDPort, "gpsd port")
	flag.StringVar(&cfg.WebUIDist, "webui-dist", cfg.WebUIDist, "Path to built web UI assets")
	flag.StringVar(&cfg.OUIPath, "oui", cfg.OUIPath, "Path to IEEE OUI registry CSV")
	flag.StringVar(&cfg.SettingsPath, "config", cfg.SettingsPath, "Path to settings JSON")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.StringVar(&cfg.PassiveIface, "passive-iface", cfg.PassiveIface, "Monitor-mode interface for passive capture (empty to disable)")
	flag.StringVar(&cfg.CapturePath, "capture-file", "", "Parse a pcap file instead of live passive capture")

	flag.Parse()

	return cfg
}

func splitList(s string) []string {
	var out []string
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// DefaultSettingsPath returns the settings file location under the user
// config directory ($XDG_CONFIG_HOME or ~/.config).
func DefaultSettingsPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		log.Printf("Warning: Could not get user config directory, using current dir: %v", err)
		return "config.json"
	}
	return filepath.Join(base, "piwardrive", "config.json")
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "piwardrive.db"
	}

	dir := filepath.Join(home, ".piwardrive")

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .piwardrive directory, using current dir: %v", err)
		return "piwardrive.db"
	}

	return filepath.Join(dir, "piwardrive.db")
}

func getDefaultExportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "exports"
	}
	return filepath.Join(home, ".piwardrive", "exports")
}
