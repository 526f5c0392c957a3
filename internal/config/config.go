// Package config handles loading and resolving sonarboard configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flag (--token, --backend, ...)
//  2. Environment variables, including those loaded from .env and ../config.env
//  3. config.json, config.yaml or config.yml in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultFormat      = "table"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	DefaultRate        = 5.0
	DefaultBackendURL  = "http://localhost:8080"
	DefaultMeasuresURL = "http://localhost:9000/api/measures/component"
	DefaultHistoryURL  = "http://localhost:9000/api/measures/search_history"
	DefaultBranch      = "main"
	DefaultListen      = ":8080"

	EnvToken       = "SONARQUBE_TOKEN"
	EnvBackendURL  = "SONARBOARD_URL"
	EnvMeasuresURL = "SONARQUBE_URL"
	EnvHistoryURL  = "SONAR_HISTORY_URL"
	EnvBranch      = "SONAR_DEFAULT_BRANCH"
	EnvDBPath      = "SONARBOARD_DB_PATH"
	EnvListen      = "SONARBOARD_LISTEN"
)

// DefaultMetrics are the measures queried when none are named.
var DefaultMetrics = []string{"bugs", "vulnerabilities", "code_smells", "coverage", "duplicated_lines_density"}

// candidateFiles are searched in order in the working directory.
var candidateFiles = []string{DefaultConfigFile, "config.yaml", "config.yml"}

// validFormats lists accepted --format values.
var validFormats = []string{"table", "json", "jsonl", "csv", "tsv", "md"}

// File is the on-disk representation of the config file.
type File struct {
	Token         string   `json:"token" yaml:"token"`
	BackendURL    string   `json:"backend_url" yaml:"backend_url"`
	MeasuresURL   string   `json:"sonarqube_url" yaml:"sonarqube_url"`
	HistoryURL    string   `json:"history_url" yaml:"history_url"`
	Branch        string   `json:"branch" yaml:"branch"`
	Metrics       []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	DefaultFormat string   `json:"default_format" yaml:"default_format"`
	Timeout       string   `json:"timeout" yaml:"timeout"`
	Concurrency   int      `json:"concurrency" yaml:"concurrency"`
	Rate          float64  `json:"rate" yaml:"rate"`
	DBPath        string   `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen        string   `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Token       string
	BackendURL  string
	MeasuresURL string
	HistoryURL  string
	Branch      string
	Metrics     []string
	Format      string
	Timeout     time.Duration
	Concurrency int
	Rate        float64
	DBPath      string
	Listen      string
	ConfigPath  string // path of the config file that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Cache   bool
	Refresh bool
	Direct  bool // query SonarQube directly instead of the backend
	NoXLSX  bool // force the server-side spreadsheet export
	Quiet   bool
	Verbose bool
	Debug   bool
	NoColor bool
}

// Load resolves configuration from all sources.
// flagToken is the value of --token (empty string if not set).
func Load(flagToken string) (*Config, error) {
	cfg := &Config{
		BackendURL:  DefaultBackendURL,
		MeasuresURL: DefaultMeasuresURL,
		HistoryURL:  DefaultHistoryURL,
		Branch:      DefaultBranch,
		Metrics:     append([]string(nil), DefaultMetrics...),
		Format:      DefaultFormat,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
		Listen:      DefaultListen,
	}

	// Layer 1: config file (lowest priority)
	f, path, err := LoadFile()
	switch {
	case err == nil:
		applyFile(cfg, f, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: environment, with .env files filling unset variables
	LoadDotEnv()
	applyEnv(cfg)

	// Layer 3: CLI flag (highest priority)
	if flagToken != "" {
		cfg.Token = flagToken
	}

	if cfg.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DBPath = filepath.Join(home, ".sonarboard", "cache.db")
		}
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory and config.env from its
// parent. Variables already set in the environment are not overridden.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	if wd, err := os.Getwd(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(wd), "config.env"))
	}
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Token, EnvToken)
	set(&cfg.BackendURL, EnvBackendURL)
	set(&cfg.MeasuresURL, EnvMeasuresURL)
	set(&cfg.HistoryURL, EnvHistoryURL)
	set(&cfg.Branch, EnvBranch)
	set(&cfg.DBPath, EnvDBPath)
	set(&cfg.Listen, EnvListen)
}

// Validate returns an error if any resolved value is unusable.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"backend_url":   c.BackendURL,
		"sonarqube_url": c.MeasuresURL,
		"history_url":   c.HistoryURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q (expected e.g. http://host:port/...)", name, raw)
		}
	}
	if !contains(validFormats, c.Format) {
		return fmt.Errorf("unknown format %q (valid: %s)", c.Format, strings.Join(validFormats, ", "))
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", c.Rate)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// RedactedToken returns the token with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedToken() string {
	if c.Token == "" {
		return ""
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return c.Token[:2] + "****" + c.Token[len(c.Token)-2:]
}

// LoadFile reads the first config file found in the working directory.
// The error wraps os.ErrNotExist when there is none.
func LoadFile() (*File, string, error) {
	for _, name := range candidateFiles {
		path, err := filepath.Abs(name)
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", name, err)
		}
		var f File
		if isYAML(path) {
			err = yaml.Unmarshal(data, &f)
		} else {
			err = json.Unmarshal(data, &f)
		}
		if err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", name, err)
		}
		return &f, path, nil
	}
	return nil, "", fmt.Errorf("no config file in working directory: %w", os.ErrNotExist)
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&cfg.Token, f.Token)
	str(&cfg.BackendURL, f.BackendURL)
	str(&cfg.MeasuresURL, f.MeasuresURL)
	str(&cfg.HistoryURL, f.HistoryURL)
	str(&cfg.Branch, f.Branch)
	str(&cfg.Format, f.DefaultFormat)
	str(&cfg.DBPath, f.DBPath)
	str(&cfg.Listen, f.Listen)
	if len(f.Metrics) > 0 {
		cfg.Metrics = append([]string(nil), f.Metrics...)
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config file via `sonarboard config init`.
func Template() File {
	return File{
		BackendURL:    DefaultBackendURL,
		MeasuresURL:   DefaultMeasuresURL,
		HistoryURL:    DefaultHistoryURL,
		Branch:        DefaultBranch,
		Metrics:       append([]string(nil), DefaultMetrics...),
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
	}
}

// WriteFile serialises a File to path as YAML or JSON depending on its extension.
func WriteFile(path string, f File) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Set assigns one key of f from its string form.
func (f *File) Set(key, val string) error {
	switch strings.ToLower(key) {
	case "token":
		f.Token = val
	case "backend_url":
		f.BackendURL = val
	case "sonarqube_url":
		f.MeasuresURL = val
	case "history_url":
		f.HistoryURL = val
	case "branch":
		f.Branch = val
	case "metrics":
		f.Metrics = nil
		for _, m := range strings.Split(val, ",") {
			if m = strings.TrimSpace(m); m != "" {
				f.Metrics = append(f.Metrics, m)
			}
		}
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration like 30s: %w", err)
		}
		f.Timeout = val
	case "concurrency":
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("concurrency must be a positive integer")
		}
		f.Concurrency = n
	case "rate":
		var r float64
		if _, err := fmt.Sscanf(val, "%g", &r); err != nil || r <= 0 {
			return fmt.Errorf("rate must be a positive number")
		}
		f.Rate = r
	case "db_path":
		f.DBPath = val
	case "listen":
		f.Listen = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Keys lists the settable config keys.
var Keys = []string{
	"token", "backend_url", "sonarqube_url", "history_url", "branch", "metrics",
	"default_format", "timeout", "concurrency", "rate", "db_path", "listen",
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
