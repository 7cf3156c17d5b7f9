// Package config loads bot settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	// the bot runs on images without a zoneinfo database
	_ "time/tzdata"

	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "regatasimulator.yaml"

type Telegram struct {
	Token        string `yaml:"token"`
	BotUsername  string `yaml:"bot_username"`
	CreatorID    int64  `yaml:"creator_id"`
	ChannelID    int64  `yaml:"channel_id"`
	BackupChatID int64  `yaml:"backup_chat_id"`
	PollTimeout  int    `yaml:"poll_timeout"`
	// Concurrency bounds how many triggers are handled at once
	Concurrency int `yaml:"concurrency"`
}

type Storage struct {
	// Driver is sqlite or memory
	Driver       string `yaml:"driver"`
	DataDir      string `yaml:"data_dir"`
	TemplatesDir string `yaml:"templates_dir"`
	SourcesDir   string `yaml:"sources_dir"`
	WorkDir      string `yaml:"work_dir"`
}

// DatabasePath is where the sqlite file lives
func (s Storage) DatabasePath() string {
	return filepath.Join(s.DataDir, "regata.db")
}

type Imaging struct {
	// Backend is magick or native
	Backend       string        `yaml:"backend"`
	MagickBinary  string        `yaml:"magick_binary"`
	Timeout       time.Duration `yaml:"timeout"`
	MaskCacheSize int           `yaml:"mask_cache_size"`
}

type Selection struct {
	RecentFraction float64           `yaml:"recent_fraction"`
	HistoryCap     int               `yaml:"history_cap"`
	WeightFloor    int               `yaml:"weight_floor"`
	TemplateWeight int               `yaml:"template_weight"`
	SourceWeight   int               `yaml:"source_weight"`
	Timezone       string            `yaml:"timezone"`
	Themes         []selection.Theme `yaml:"themes"`
}

type Schedule struct {
	Meme   string `yaml:"meme"`
	Backup string `yaml:"backup"`
}

type Admin struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type Backup struct {
	ChunkSize int64 `yaml:"chunk_size"`
}

type Config struct {
	Telegram  Telegram  `yaml:"telegram"`
	Storage   Storage   `yaml:"storage"`
	Imaging   Imaging   `yaml:"imaging"`
	Selection Selection `yaml:"selection"`
	Schedule  Schedule  `yaml:"schedule"`
	Admin     Admin     `yaml:"admin"`
	Backup    Backup    `yaml:"backup"`
	MaxSteps  int       `yaml:"max_steps"`
}

func Default() *Config {
	return &Config{
		Telegram: Telegram{PollTimeout: 60, Concurrency: 4},
		Storage: Storage{
			Driver:       "sqlite",
			DataDir:      "data",
			TemplatesDir: filepath.Join("data", "templates"),
			SourcesDir:   filepath.Join("data", "sources"),
			WorkDir:      filepath.Join(os.TempDir(), "regatasimulator"),
		},
		Imaging: Imaging{
			Backend:       "magick",
			MagickBinary:  "magick",
			Timeout:       60 * time.Second,
			MaskCacheSize: 64,
		},
		Selection: Selection{
			RecentFraction: 0.75,
			HistoryCap:     1000,
			WeightFloor:    1,
			TemplateWeight: 30,
			SourceWeight:   10,
			Timezone:       "America/Sao_Paulo",
			Themes:         selection.DefaultThemes(),
		},
		Schedule: Schedule{
			Meme:   "0 0,30 * * * *",
			Backup: "0 15 12 * * SUN",
		},
		Admin:    Admin{Addr: ""},
		Backup:   Backup{ChunkSize: 40 << 20},
		MaxSteps: 64,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is fine unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TELEGRAM_BOT_TOKEN":    &c.Telegram.Token,
		"TELEGRAM_BOT_USERNAME": &c.Telegram.BotUsername,
		"REGATA_STORAGE_DRIVER": &c.Storage.Driver,
		"REGATA_TEMPLATES_DIR":  &c.Storage.TemplatesDir,
		"REGATA_SOURCES_DIR":    &c.Storage.SourcesDir,
		"REGATA_WORK_DIR":       &c.Storage.WorkDir,
		"REGATA_IMAGE_BACKEND":  &c.Imaging.Backend,
		"REGATA_MAGICK_BINARY":  &c.Imaging.MagickBinary,
		"REGATA_ADMIN_ADDR":     &c.Admin.Addr,
		"REGATA_ADMIN_TOKEN":    &c.Admin.Token,
		"REGATA_TIMEZONE":       &c.Selection.Timezone,
	}
	// the data dir moves the asset dirs along unless they are set explicitly
	if v, ok := os.LookupEnv("REGATA_DATA_DIR"); ok && v != "" {
		c.Storage.DataDir = v
		c.Storage.TemplatesDir = filepath.Join(v, "templates")
		c.Storage.SourcesDir = filepath.Join(v, "sources")
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"TELEGRAM_CREATOR_ID":     &c.Telegram.CreatorID,
		"TELEGRAM_CHANNEL_ID":     &c.Telegram.ChannelID,
		"TELEGRAM_BACKUP_CHAT_ID": &c.Telegram.BackupChatID,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Selection.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Selection.Timezone, err)
	}
	return loc, nil
}

// Validate checks the values every command relies on. Telegram credentials
// are checked by the commands that talk to Telegram.
func (c *Config) Validate() error {
	var errs []error
	s := c.Selection
	if s.RecentFraction <= 0 || s.RecentFraction > 1 {
		errs = append(errs, fmt.Errorf("selection.recent_fraction must be in (0,1], got %v", s.RecentFraction))
	}
	if s.HistoryCap < 1 {
		errs = append(errs, fmt.Errorf("selection.history_cap must be at least 1, got %d", s.HistoryCap))
	}
	if s.WeightFloor < 1 {
		errs = append(errs, fmt.Errorf("selection.weight_floor must be at least 1, got %d", s.WeightFloor))
	}
	if s.TemplateWeight < 1 || s.SourceWeight < 1 {
		errs = append(errs, errors.New("initial weights must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for _, th := range s.Themes {
		if th.Month < time.January || th.Month > time.December || th.Day < 1 || th.Day > 31 {
			errs = append(errs, fmt.Errorf("invalid theme date %d/%d", th.Day, th.Month))
		}
	}

	switch c.Imaging.Backend {
	case "magick", "native":
	default:
		errs = append(errs, fmt.Errorf("unknown image backend %q", c.Imaging.Backend))
	}
	if c.Imaging.Timeout <= 0 {
		errs = append(errs, errors.New("imaging.timeout must be positive"))
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Backup.ChunkSize <= 0 {
		errs = append(errs, errors.New("backup.chunk_size must be positive"))
	}
	if c.MaxSteps < 1 {
		errs = append(errs, errors.New("max_steps must be at least 1"))
	}
	if c.Telegram.Concurrency < 1 {
		errs = append(errs, errors.New("telegram.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

// RequireTelegram checks what the bot needs to talk to Telegram
func (c *Config) RequireTelegram() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.Telegram.CreatorID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CREATOR_ID is required"))
	}
	if c.Telegram.ChannelID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHANNEL_ID is required"))
	}
	return errors.Join(errs...)
}
