package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
		Mode string `yaml:"mode" validate:"omitempty,oneof=debug release test"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format     string `yaml:"format" validate:"omitempty,oneof=json console"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
		MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	} `yaml:"log"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Scoreboard struct {
		CacheTTL string `yaml:"cache_ttl" validate:"omitempty,duration"`
		PageSize int    `yaml:"page_size" validate:"omitempty,min=1,max=100"`
	} `yaml:"scoreboard"`
	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		HeaderIdentity bool   `yaml:"header_identity"`
	} `yaml:"auth"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// Load reads YAML config from path, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	ApplyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the deployment environment.
func ApplyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"PORT", &cfg.Server.Port},
		{"POSTGRES_URL", &cfg.Postgres.URL},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"JWT_SECRET", &cfg.Auth.JWTSecret},
		{"AMQP_URL", &cfg.Events.AMQPURL},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.dst = v
		}
	}
}

// Validate checks struct tags and reports every failing field at once.
func Validate(cfg Config) error {
	validate := validator.New()
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
