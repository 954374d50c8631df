// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dgallion1/xmlgest/internal/convert"
	"github.com/dgallion1/xmlgest/internal/ingest"
	"github.com/dgallion1/xmlgest/internal/parser"
	"github.com/dgallion1/xmlgest/internal/policy"
	"github.com/dgallion1/xmlgest/internal/xmlchar"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8090"`

	// Pathstore connection. An empty URL keeps documents in memory.
	PathstoreURL    string `env:"PATHSTORE_URL"`
	PathstoreAPIKey string `env:"PATHSTORE_API_KEY"`

	// Auth
	APIKey string `env:"XMLGEST_API_KEY"`

	// Worker pool
	WorkerCount        int `env:"WORKER_COUNT" envDefault:"4"`
	MaxQueueSize       int `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	MaxConcurrentStore int `env:"MAX_CONCURRENT_STORE" envDefault:"10"`

	// Upload limits
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	// Job state
	JobTTL time.Duration `env:"JOB_TTL" envDefault:"1h"`

	// Conversion
	PolicyFile             string   `env:"POLICY_FILE"`
	XMLVersion             string   `env:"XML_VERSION" envDefault:"1.0"`
	ReplacementChar        string   `env:"REPLACEMENT_CHAR"`
	BlockElements          []string `env:"BLOCK_ELEMENTS" envSeparator:","`
	SplitSentencesInBlocks bool     `env:"SPLIT_SENTENCES_IN_BLOCKS"`
	UncapturedElements     []string `env:"UNCAPTURED_ELEMENTS" envSeparator:","`
	MaxElementDepth        int      `env:"MAX_ELEMENT_DEPTH"`

	// Sources
	HTMLPrefilter        bool `env:"HTML_PREFILTER" envDefault:"true"`
	PDFFallbackPdftotext bool `env:"PDF_FALLBACK_PDFTOTEXT" envDefault:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads a .env file when one exists, then the environment.
func Load() (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("XMLGEST_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return errors.New("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	if _, err := c.CharFilter(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// CharFilter builds the character legality filter from XML_VERSION and
// REPLACEMENT_CHAR.
func (c Config) CharFilter() (xmlchar.Filter, error) {
	v, err := xmlchar.ParseVersion(c.XMLVersion)
	if err != nil {
		return xmlchar.Filter{}, fmt.Errorf("XML_VERSION: %w", err)
	}
	repl := xmlchar.DefaultReplacement
	if c.ReplacementChar != "" {
		if utf8.RuneCountInString(c.ReplacementChar) != 1 {
			return xmlchar.Filter{}, fmt.Errorf("REPLACEMENT_CHAR must be a single character, got %q", c.ReplacementChar)
		}
		repl, _ = utf8.DecodeRuneInString(c.ReplacementChar)
	}
	f, err := xmlchar.NewFilter(v, repl)
	if err != nil {
		return xmlchar.Filter{}, fmt.Errorf("REPLACEMENT_CHAR: %w", err)
	}
	return f, nil
}

// Level parses LOG_LEVEL.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

// Policy loads POLICY_FILE, or returns nil when it is unset.
func (c Config) Policy() (*policy.Table, error) {
	if c.PolicyFile == "" {
		return nil, nil
	}
	return policy.LoadFile(c.PolicyFile)
}

// Converter assembles the conversion settings.
func (c Config) Converter(log *slog.Logger) (*convert.Converter, error) {
	filter, err := c.CharFilter()
	if err != nil {
		return nil, err
	}
	table, err := c.Policy()
	if err != nil {
		return nil, err
	}
	opts := ingest.Options{
		Filter:         filter,
		BlockElements:  c.BlockElements,
		NestedSegments: c.SplitSentencesInBlocks,
	}
	if len(c.UncapturedElements) > 0 {
		opts.Capture = make(map[string]bool, len(c.UncapturedElements))
		for _, name := range c.UncapturedElements {
			opts.Capture[name] = false
		}
	}
	return &convert.Converter{
		Policy:   table,
		Options:  opts,
		MaxDepth: c.MaxElementDepth,
		Sources: parser.Options{
			HTMLPrefilter:        c.HTMLPrefilter,
			PDFFallbackPdftotext: c.PDFFallbackPdftotext,
		},
		Logger: log,
	}, nil
}
