package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/openalpha/classdex/engine/book"
)

// Viper keys, shared with the flag bindings in the serve command.
const (
	KeyPort          = "port"
	KeyAdminPassword = "admin_password"
	KeyCORSOrigin    = "cors_origin"
	KeyBookEngine    = "book_engine"
	KeyClickSize     = "click_size"
	KeyLogLevel      = "log_level"
)

// DefaultAdminPassword is flagged at startup so operators change it.
const DefaultAdminPassword = "admin"

// Config carries everything the server needs at boot.
type Config struct {
	Port          int
	AdminPassword string
	CORSOrigin    string
	BookEngine    string
	ClickSize     int64
	LogLevel      string
}

// Load reads configuration from v with defaults and environment
// bindings applied. Pass nil to read the process environment only.
// Precedence: flags bound into v, then environment, then defaults.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyAdminPassword, DefaultAdminPassword)
	v.SetDefault(KeyCORSOrigin, "*")
	v.SetDefault(KeyBookEngine, book.EngineBTree)
	v.SetDefault(KeyClickSize, 5)
	v.SetDefault(KeyLogLevel, "info")

	_ = v.BindEnv(KeyPort, "PORT")
	_ = v.BindEnv(KeyAdminPassword, "ADMIN_PASSWORD")
	_ = v.BindEnv(KeyCORSOrigin, "CORS_ORIGIN")
	_ = v.BindEnv(KeyBookEngine, "BOOK_ENGINE")
	_ = v.BindEnv(KeyClickSize, "CLICK_SIZE")
	_ = v.BindEnv(KeyLogLevel, "LOG_LEVEL")

	cfg := &Config{
		Port:          v.GetInt(KeyPort),
		AdminPassword: v.GetString(KeyAdminPassword),
		CORSOrigin:    v.GetString(KeyCORSOrigin),
		BookEngine:    v.GetString(KeyBookEngine),
		ClickSize:     v.GetInt64(KeyClickSize),
		LogLevel:      v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BookEngine != book.EngineBTree && c.BookEngine != book.EngineSkipList {
		return fmt.Errorf("unknown book engine %q", c.BookEngine)
	}
	if c.ClickSize < 1 {
		return fmt.Errorf("click size must be at least 1, got %d", c.ClickSize)
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("admin password cannot be empty")
	}
	return nil
}
