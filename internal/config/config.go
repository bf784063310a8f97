package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/taskpadhq/taskpad/internal/document"
)

const (
	envPrefix              = "TASKPAD"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "taskpad.db"
	defaultLogLevel        = "info"
	defaultSessionTTL      = 30 * time.Minute
	defaultSessionIssuer   = "taskpad-api"
	defaultSessionAudience = "taskpad-client"
)

// ServerConfig captures runtime configuration for the API server.
type ServerConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	Credential           string
	SessionSigningSecret string
	SessionTTL           time.Duration
	SessionIssuer        string
	SessionAudience      string
	DocumentID           string
	HistoryLimit         int
	EqualTimestampPolicy document.EqualTimestampPolicy
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("document.id", document.DefaultDocumentID)
	configViper.SetDefault("history.limit", document.DefaultHistoryLimit)
	configViper.SetDefault("sync.equal_timestamp_policy", string(document.EqualTimestampNoop))
	configViper.SetDefault("session.ttl_minutes", int(defaultSessionTTL/time.Minute))
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.audience", defaultSessionAudience)
}

// Load parses server runtime configuration from viper.
func Load(configViper *viper.Viper) (ServerConfig, error) {
	policy, err := document.ParseEqualTimestampPolicy(configViper.GetString("sync.equal_timestamp_policy"))
	if err != nil {
		return ServerConfig{}, err
	}

	signingSecret := configViper.GetString("session.signing_secret")
	if strings.TrimSpace(signingSecret) == "" {
		// Without a dedicated signing secret, session tokens are signed with
		// the shared credential itself.
		signingSecret = configViper.GetString("auth.credential")
	}

	cfg := ServerConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		Credential:           configViper.GetString("auth.credential"),
		SessionSigningSecret: signingSecret,
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionAudience:      configViper.GetString("session.audience"),
		DocumentID:           configViper.GetString("document.id"),
		HistoryLimit:         configViper.GetInt("history.limit"),
		EqualTimestampPolicy: policy,
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.Credential) == "" {
		return fmt.Errorf("auth.credential is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.DocumentID) == "" {
		return fmt.Errorf("document.id is required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history.limit must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}
