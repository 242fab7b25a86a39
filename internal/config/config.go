package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Translation TranslationConfig `mapstructure:"translation"`
	Translator  TranslatorConfig  `mapstructure:"translator"`
	Wanted      WantedConfig      `mapstructure:"wanted"`
	Whisper     WhisperConfig     `mapstructure:"whisper"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Sonarr      ArrConfig         `mapstructure:"sonarr"`
	Radarr      ArrConfig         `mapstructure:"radarr"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ProvidersConfig holds subtitle provider configuration.
type ProvidersConfig struct {
	Enabled        []string `mapstructure:"enabled"`
	Priority       []string `mapstructure:"priority"`
	AutoPrioritize bool     `mapstructure:"auto_prioritize"`
	CacheTTLHours  int      `mapstructure:"cache_ttl_hours"`
}

// TranslationConfig holds translation backend configuration.
// ProfilesFile optionally seeds language profiles from a YAML file at
// startup.
type TranslationConfig struct {
	Backend      string `mapstructure:"backend"`
	MaxRetries   int    `mapstructure:"max_retries"`
	ProfilesFile string `mapstructure:"profiles_file"`
}

// TranslatorConfig holds translator engine configuration.
type TranslatorConfig struct {
	SourceLanguage  string `mapstructure:"source_language"`
	TargetLanguage  string `mapstructure:"target_language"`
	UpgradeEnabled  bool   `mapstructure:"upgrade_enabled"`
	UpgradeDelta    int    `mapstructure:"upgrade_delta"`
	PreferASS       bool   `mapstructure:"prefer_ass"`
	UseEmbeddedSubs bool   `mapstructure:"use_embedded_subs"`
}

// WantedConfig holds wanted scanner and search loop configuration.
type WantedConfig struct {
	ScanIntervalHours   int `mapstructure:"scan_interval_hours"`
	SearchIntervalHours int `mapstructure:"search_interval_hours"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	MaxItemsPerRun      int `mapstructure:"max_items_per_run"`
}

// WhisperConfig holds transcription configuration.
type WhisperConfig struct {
	Binary         string `mapstructure:"binary"`
	Model          string `mapstructure:"model"`
	Device         string `mapstructure:"device"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes"`
	Concurrency    int    `mapstructure:"concurrency"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	Size    int `mapstructure:"size"`
}

// BackupConfig holds database backup configuration.
type BackupConfig struct {
	Path          string `mapstructure:"path"`
	RetainDaily   int    `mapstructure:"retain_daily"`
	RetainWeekly  int    `mapstructure:"retain_weekly"`
	RetainMonthly int    `mapstructure:"retain_monthly"`
}

// ArrConfig holds connection settings for one external automation system.
type ArrConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8737,
		},
		Database: DatabaseConfig{
			Path: "./data/sublarr.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Providers: ProvidersConfig{
			CacheTTLHours: 24,
		},
		Translation: TranslationConfig{
			Backend:    "localllm",
			MaxRetries: 3,
		},
		Translator: TranslatorConfig{
			SourceLanguage:  "en",
			TargetLanguage:  "de",
			UpgradeEnabled:  true,
			UpgradeDelta:    50,
			PreferASS:       true,
			UseEmbeddedSubs: true,
		},
		Wanted: WantedConfig{
			ScanIntervalHours:   6,
			SearchIntervalHours: 24,
			MaxAttempts:         5,
			MaxItemsPerRun:      50,
		},
		Whisper: WhisperConfig{
			Binary:         "whisperx",
			Model:          "large-v3",
			Device:         "cpu",
			TimeoutMinutes: 60,
			Concurrency:    1,
		},
		Queue: QueueConfig{
			Workers: 2,
			Size:    100,
		},
		Backup: BackupConfig{
			Path:          "./data/backups",
			RetainDaily:   7,
			RetainWeekly:  4,
			RetainMonthly: 3,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A .env file in the working directory feeds the SUBLARR_ variables
	// below; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.sublarr")
	}

	v.SetEnvPrefix("SUBLARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("providers.cache_ttl_hours", def.Providers.CacheTTLHours)
	v.SetDefault("translation.backend", def.Translation.Backend)
	v.SetDefault("translation.max_retries", def.Translation.MaxRetries)
	v.SetDefault("translator.source_language", def.Translator.SourceLanguage)
	v.SetDefault("translator.target_language", def.Translator.TargetLanguage)
	v.SetDefault("translator.upgrade_enabled", def.Translator.UpgradeEnabled)
	v.SetDefault("translator.upgrade_delta", def.Translator.UpgradeDelta)
	v.SetDefault("translator.prefer_ass", def.Translator.PreferASS)
	v.SetDefault("translator.use_embedded_subs", def.Translator.UseEmbeddedSubs)
	v.SetDefault("wanted.scan_interval_hours", def.Wanted.ScanIntervalHours)
	v.SetDefault("wanted.search_interval_hours", def.Wanted.SearchIntervalHours)
	v.SetDefault("wanted.max_attempts", def.Wanted.MaxAttempts)
	v.SetDefault("wanted.max_items_per_run", def.Wanted.MaxItemsPerRun)
	v.SetDefault("whisper.binary", def.Whisper.Binary)
	v.SetDefault("whisper.model", def.Whisper.Model)
	v.SetDefault("whisper.device", def.Whisper.Device)
	v.SetDefault("whisper.timeout_minutes", def.Whisper.TimeoutMinutes)
	v.SetDefault("whisper.concurrency", def.Whisper.Concurrency)
	v.SetDefault("queue.workers", def.Queue.Workers)
	v.SetDefault("queue.size", def.Queue.Size)
	v.SetDefault("backup.path", def.Backup.Path)
	v.SetDefault("backup.retain_daily", def.Backup.RetainDaily)
	v.SetDefault("backup.retain_weekly", def.Backup.RetainWeekly)
	v.SetDefault("backup.retain_monthly", def.Backup.RetainMonthly)
}
