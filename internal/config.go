package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Oracle providers.
const (
	OracleOpenAI = "openai"
	OracleOllama = "ollama"
)

// Similarity providers.
const (
	SimilarityEmbedding = "embedding"
	SimilarityLexical   = "lexical"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Oracle     OracleConfig      `yaml:"oracle"`
	Similarity SimilarityConfig  `yaml:"similarity"`
	Seeds      SeedsConfig       `yaml:"seeds"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return err
	}
	return c.Similarity.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration. ":memory:" is allowed
// for ephemeral runs.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// OracleConfig selects and configures the content-merge provider.
type OracleConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Attempts int    `yaml:"attempts"`
}

// Validate validates the oracle configuration.
func (c *OracleConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(OracleOpenAI, OracleOllama)),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Attempts, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.Provider == OracleOpenAI && c.APIKey == "" {
		return fmt.Errorf("oracle: provider is %q but api_key is empty", OracleOpenAI)
	}
	return nil
}

// SimilarityConfig selects and configures the overlap index used by smart
// document insertion.
type SimilarityConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxDistance float64 `yaml:"max_distance"`
	MaxResults  int     `yaml:"max_results"`
}

// Validate validates the similarity configuration.
func (c *SimilarityConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(SimilarityEmbedding, SimilarityLexical)),
		validation.Field(&c.MaxDistance, validation.Min(0.0)),
		validation.Field(&c.MaxResults, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.Provider == SimilarityEmbedding {
		if c.Model == "" {
			return fmt.Errorf("similarity: provider is %q but model is empty", SimilarityEmbedding)
		}
		if c.APIKey == "" {
			return fmt.Errorf("similarity: provider is %q but api_key is empty", SimilarityEmbedding)
		}
	}
	return nil
}

// SeedsConfig holds the optional seed directory watched for block ingest.
// An empty path disables ingest.
type SeedsConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./othala.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Oracle: OracleConfig{
			Provider: OracleOllama,
			Model:    "llama3.1",
			BaseURL:  "http://localhost:11434",
			Attempts: 3,
		},
		Similarity: SimilarityConfig{
			Provider:    SimilarityLexical,
			Model:       "text-embedding-3-small",
			MaxDistance: 0.5,
			MaxResults:  1,
		},
	}
}
