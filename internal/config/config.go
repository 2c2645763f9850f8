package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sector is one routing label and the keywords that select it.
type Sector struct {
	Name     string   `toml:"name" yaml:"name"`
	Keywords []string `toml:"keywords" yaml:"keywords"`
}

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	StartupTimeout       time.Duration `toml:"startup_timeout"`
	HealthInterval       time.Duration `toml:"health_interval"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `toml:"reconnect_backoff"`
	DeviceName           string        `toml:"device_name"`
}

// IngestConfig tunes the inbound pipeline.
type IngestConfig struct {
	MaxEventAge    time.Duration `toml:"max_event_age"`
	AvatarTTL      time.Duration `toml:"avatar_ttl"`
	AvatarAttempts int           `toml:"avatar_attempts"`
	AvatarBackoff  time.Duration `toml:"avatar_backoff"`
	AvatarTimeout  time.Duration `toml:"avatar_timeout"`
	LaneBuffer     int           `toml:"lane_buffer"`
}

// MediaConfig bounds media persistence and inline fallbacks.
type MediaConfig struct {
	Dir             string        `toml:"dir"`
	URLPrefix       string        `toml:"url_prefix"`
	InlineMinBytes  int           `toml:"inline_min_bytes"`
	InlineMaxBytes  int           `toml:"inline_max_bytes"`
	AudioInlineMin  int           `toml:"audio_inline_min_bytes"`
	DownloadTimeout time.Duration `toml:"download_timeout"`
}

// AutoReplyConfig holds cooldowns and fallback texts for automated sends.
type AutoReplyConfig struct {
	GreetingCooldown      time.Duration `toml:"greeting_cooldown"`
	BusinessHoursCooldown time.Duration `toml:"business_hours_cooldown"`
	SweepInterval         time.Duration `toml:"sweep_interval"`
	Retention             time.Duration `toml:"retention"`
	Morning               string        `toml:"morning"`
	Afternoon             string        `toml:"afternoon"`
	Evening               string        `toml:"evening"`
	GreetingText          string        `toml:"greeting_text"`
	GoodbyeText           string        `toml:"goodbye_text"`
	AfterHoursText        string        `toml:"after_hours_text"`
	Signature             string        `toml:"signature"`
}

// OutboxConfig tunes the campaign sender.
type OutboxConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
	RatePerSec   float64       `toml:"rate_per_sec"`
	Burst        int           `toml:"burst"`
}

// Config represents deskd's config.toml. It is treated as immutable once loaded.
type Config struct {
	BaseDir       string          `toml:"base_dir"`
	LogLevel      string          `toml:"log_level"`
	SectorsFile   string          `toml:"sectors_file"`
	DefaultSector string          `toml:"default_sector"`
	Sectors       []Sector        `toml:"sectors"`
	Sessions      SessionConfig   `toml:"sessions"`
	Ingest        IngestConfig    `toml:"ingest"`
	Media         MediaConfig     `toml:"media"`
	AutoReply     AutoReplyConfig `toml:"autoreply"`
	Outbox        OutboxConfig    `toml:"outbox"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		BaseDir:       filepath.Join(home, ".wppdesk"),
		LogLevel:      "info",
		DefaultSector: "General",
		Sectors:       DefaultSectors(),
		Sessions: SessionConfig{
			StartupTimeout:       2 * time.Minute,
			HealthInterval:       60 * time.Second,
			MaxReconnectAttempts: 3,
			ReconnectBackoff:     5 * time.Second,
			DeviceName:           "wppdesk",
		},
		Ingest: IngestConfig{
			MaxEventAge:    time.Hour,
			AvatarTTL:      7 * 24 * time.Hour,
			AvatarAttempts: 3,
			AvatarBackoff:  2 * time.Second,
			AvatarTimeout:  30 * time.Second,
			LaneBuffer:     64,
		},
		Media: MediaConfig{
			URLPrefix:       "/media",
			InlineMinBytes:  500,
			InlineMaxBytes:  5 * 1024 * 1024,
			AudioInlineMin:  1000,
			DownloadTimeout: 60 * time.Second,
		},
		AutoReply: AutoReplyConfig{
			GreetingCooldown:      5 * time.Minute,
			BusinessHoursCooldown: 30 * time.Minute,
			SweepInterval:         30 * time.Minute,
			Retention:             time.Hour,
			Morning:               "Good morning",
			Afternoon:             "Good afternoon",
			Evening:               "Good evening",
			GreetingText:          "{greeting}, {name}! Thanks for reaching out, an agent will be with you shortly.",
			GoodbyeText:           "Thanks for talking to us, {name}. Have a great day!",
			AfterHoursText:        "{greeting}, {name}. We are closed right now ({date} {time}); we will reply as soon as we are back.",
		},
		Outbox: OutboxConfig{
			PollInterval: 500 * time.Millisecond,
			RatePerSec:   1,
			Burst:        1,
		},
	}
}

// DefaultSectors is the built-in ordered keyword dictionary. Order matters:
// the first sector with a matching keyword wins.
func DefaultSectors() []Sector {
	return []Sector{
		{Name: "Suplementos", Keywords: []string{"whey", "protein", "proteina", "creatina", "suplemento", "bcaa", "colageno", "vitamina"}},
		{Name: "Financeiro", Keywords: []string{"boleto", "pagamento", "reembolso", "estorno", "nota fiscal", "fatura"}},
		{Name: "Entregas", Keywords: []string{"entrega", "rastreio", "rastreamento", "frete", "pedido"}},
		{Name: "Suporte", Keywords: []string{"defeito", "problema", "troca", "garantia", "reclamacao"}},
	}
}

// MediaDir returns the configured media directory, defaulting under BaseDir.
func (c Config) MediaDir() string {
	if c.Media.Dir != "" {
		return c.Media.Dir
	}
	return filepath.Join(c.BaseDir, "media")
}

// Load reads config from the given path on top of Default(). Returns error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.SectorsFile != "" {
		sectors, err := LoadSectors(cfg.SectorsFile)
		if err != nil {
			return nil, fmt.Errorf("load sectors file: %w", err)
		}
		cfg.Sectors = sectors
	}
	return &cfg, nil
}

// LoadSectors reads an ordered sector dictionary from a YAML file:
//
//	# sectors.yaml
//	- name: Suplementos
//	  keywords: [whey, creatina]
func LoadSectors(path string) ([]Sector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sectors []Sector
	if err := yaml.Unmarshal(data, &sectors); err != nil {
		return nil, err
	}
	for i, s := range sectors {
		if s.Name == "" {
			return nil, fmt.Errorf("sector %d has no name", i)
		}
	}
	return sectors, nil
}

// Resolve loads .env files, then the config file. Precedence for the path:
// flagPath, $DESK_CONFIG, <base_dir>/config.toml. A missing file yields defaults.
// DESK_BASE_DIR and DESK_LOG_LEVEL override the file.
func Resolve(flagPath string) (Config, error) {
	// godotenv.Load does not overwrite variables already set.
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	cfg := Default()
	if base := os.Getenv("DESK_BASE_DIR"); base != "" {
		cfg.BaseDir = base
	}

	path := flagPath
	if path == "" {
		path = os.Getenv("DESK_CONFIG")
	}
	if path == "" {
		path = filepath.Join(cfg.BaseDir, "config.toml")
	}

	loaded, err := Load(path)
	switch {
	case err == nil:
		cfg = *loaded
	case os.IsNotExist(err):
	default:
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}

	if base := os.Getenv("DESK_BASE_DIR"); base != "" {
		cfg.BaseDir = base
	}
	if lvl := os.Getenv("DESK_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
