package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Twilio   TwilioConfig   `yaml:"twilio" mapstructure:"twilio"`
	OpenAI   OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// BaseURL is the public URL the telephony provider calls back on,
	// used to build absolute status/recording callback URLs.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TwilioConfig holds telephony provider credentials.
type TwilioConfig struct {
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`
	// Debug skips webhook signature validation. Never enable in production.
	Debug bool `yaml:"debug" mapstructure:"debug"`
	// Voice and Language configure the spoken decline/error messages.
	Voice    string `yaml:"voice" mapstructure:"voice"`
	Language string `yaml:"language" mapstructure:"language"`
}

// OpenAIConfig holds transcription and classification model settings.
type OpenAIConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	WhisperModel string `yaml:"whisper_model" mapstructure:"whisper_model"`
	ChatModel    string `yaml:"chat_model" mapstructure:"chat_model"`
	Language     string `yaml:"language" mapstructure:"language"`
}

// AnalysisConfig tunes the post-call analysis pipeline.
type AnalysisConfig struct {
	DownloadTimeoutSecs int   `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	MaxAudioBytes       int64 `yaml:"max_audio_bytes" mapstructure:"max_audio_bytes"`
	RequestsPerMinute   int   `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIConfig configures the dashboard-facing REST API.
type APIConfig struct {
	Keys           []string `yaml:"keys" mapstructure:"keys"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CALLTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so AutomaticEnv values
	// survive Unmarshal (viper only reads env for keys it knows about).
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.debug", false)
	v.SetDefault("openai.key", "")
	v.SetDefault("api.keys", []string{})
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("twilio.voice", "Polly.Camila")
	v.SetDefault("twilio.language", "pt-BR")
	v.SetDefault("openai.whisper_model", "whisper-1")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.language", "pt")
	v.SetDefault("analysis.download_timeout_secs", 30)
	v.SetDefault("analysis.max_audio_bytes", 50<<20)
	v.SetDefault("analysis.requests_per_minute", 20)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateServe checks the credentials the webhook server cannot run
// without. Called at startup; a failure refuses to serve.
func (c *Config) ValidateServe() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Twilio.AuthToken == "" && !c.Twilio.Debug {
		return eris.New("config: twilio.auth_token is required outside debug mode")
	}
	return nil
}

// ValidateAnalysis checks the credentials the analysis pipeline needs.
func (c *Config) ValidateAnalysis() error {
	if c.OpenAI.Key == "" {
		return eris.New("config: openai.key is required for analysis")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
