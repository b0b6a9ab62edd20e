package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"sigs.k8s.io/yaml"
)

const appName = "hubex"

type Config struct {
	Database *dbConfig      `json:"database,omitempty"`
	Service  *svcConfig     `json:"service,omitempty"`
	Auth     *authConfig    `json:"auth,omitempty"`
	Limits   *limitsConfig  `json:"limits,omitempty"`
	Devices  *devicesConfig `json:"devices,omitempty"`
}

type dbConfig struct {
	Type     string `json:"type,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     uint   `json:"port,omitempty"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	// URL, when set, wins over the discrete fields.
	URL string `json:"url,omitempty"`
}

type svcConfig struct {
	Address        string `json:"address,omitempty"`
	BaseUrl        string `json:"baseUrl,omitempty"`
	LogLevel       string `json:"logLevel,omitempty"`
	RequestTimeout string `json:"requestTimeout,omitempty"`
	// DevTools gates definition mutation and the effect run-once endpoint.
	DevTools bool `json:"devTools,omitempty"`
}

type authConfig struct {
	JWTSecret          string `json:"jwtSecret,omitempty"`
	JWTIssuer          string `json:"jwtIssuer,omitempty"`
	AccessTokenSeconds int    `json:"accessTokenSeconds,omitempty"`
	// CapsEnforce switches the capability guard from warn-and-allow to deny.
	CapsEnforce bool `json:"capsEnforce,omitempty"`
}

type limitsConfig struct {
	RateLimitEnabled  bool `json:"rateLimitEnabled,omitempty"`
	RateLimitPerMin   int  `json:"rateLimitPerMin,omitempty"`
	APIRequestsPerMin int  `json:"apiRequestsPerMin,omitempty"`
	MaxWSConnections  int  `json:"maxWsConnections,omitempty"`
}

type devicesConfig struct {
	ActiveWindowSeconds int `json:"activeWindowSeconds,omitempty"`
}

func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type:     "pgsql",
			Hostname: "localhost",
			Port:     5432,
			Name:     "hubex",
			User:     "admin",
			Password: "adminpass",
		},
		Service: &svcConfig{
			Address:        ":8000",
			BaseUrl:        "http://localhost:8000",
			LogLevel:       "info",
			RequestTimeout: "30s",
		},
		Auth: &authConfig{
			JWTSecret:          "change-me-now",
			JWTIssuer:          "hubex",
			AccessTokenSeconds: 24 * 60 * 60,
		},
		Limits: &limitsConfig{
			RateLimitPerMin:   60,
			APIRequestsPerMin: 300,
			MaxWSConnections:  200,
		},
		Devices: &devicesConfig{
			ActiveWindowSeconds: 300,
		},
	}
}

func NewFromFile(cfgFile string) (*Config, error) {
	cfg, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrGenerate(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfgFile), os.FileMode(0755)); err != nil {
			return nil, fmt.Errorf("creating directory for config file: %v", err)
		}
		if err := Save(NewDefault(), cfgFile); err != nil {
			return nil, err
		}
	}
	return NewFromFile(cfgFile)
}

func Load(cfgFile string) (*Config, error) {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(contents, c); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return c, nil
}

func Save(cfg *Config, cfgFile string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(cfgFile, contents, 0600); err != nil {
		return fmt.Errorf("writing config file: %v", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	if cfg.Auth == nil || cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret must be set")
	}
	return nil
}

// applyEnv layers the HUBEX_* environment on top of the file config. The
// environment always wins so containers can run with a generated default
// file.
func (cfg *Config) applyEnv() {
	if v := os.Getenv("HUBEX_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("HUBEX_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("HUBEX_JWT_ISSUER"); v != "" {
		cfg.Auth.JWTIssuer = v
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Auth.AccessTokenSeconds = n
		}
	}
	if v, ok := envBool("HUBEX_CAPS_ENFORCE"); ok {
		cfg.Auth.CapsEnforce = v
	}
	if v, ok := envBool("HUBEX_DEV_TOOLS"); ok {
		cfg.Service.DevTools = v
	}
	if v, ok := envBool("HUBEX_RL_ENABLED"); ok {
		cfg.Limits.RateLimitEnabled = v
	}
	if v := os.Getenv("HUBEX_RL_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.RateLimitPerMin = n
		}
	}
	if v := os.Getenv("DEVICE_ACTIVE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Devices.ActiveWindowSeconds = n
		}
	}
}

func envBool(name string) (bool, bool) {
	switch os.Getenv(name) {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	default:
		return false, false
	}
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
