package config

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

const (
	DefaultCacheFile = "/tmp/publicsuffixcache.dat"
	DefaultDatabase  = "data/subdomains.db"
	DefaultListen    = ":8080"
)

// Action is what to do with a service's subdomain after a lifecycle transition.
type Action int

const (
	DoNothing Action = iota
	DeleteSubdomain
	SetSubdomainToNewIpAddress
)

var actionNames = map[Action]string{
	DoNothing:                  "DoNothing",
	DeleteSubdomain:            "DeleteSubdomain",
	SetSubdomainToNewIpAddress: "SetSubdomainToNewIpAddress",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction converts a configured action name, case-insensitively.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return a, nil
		}
	}
	return DoNothing, fmt.Errorf("unknown action %q (want DoNothing, DeleteSubdomain or SetSubdomainToNewIpAddress)", s)
}

func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*a = parsed
	return nil
}

// Policy holds the configured reaction to service moves and deletions.
// A missing entry means DoNothing.
type Policy struct {
	AfterServiceMoveAction     Action `yaml:"afterServiceMoveAction"`
	AfterServiceDeletionAction Action `yaml:"afterServiceDeletionAction"`
}

// Config is the full, read-only application configuration.
type Config struct {
	Policy    Policy          `yaml:"policy"`
	Providers []ProviderEntry `yaml:"providers"`
	CacheFile string          `yaml:"cacheFile"`
	Database  string          `yaml:"database"`
	Listen    string          `yaml:"listen"`
	APIKey    string          `yaml:"apiKey"`
}

// Load reads the configuration from the path specified by the CONFIG_PATH
// environment variable, defaulting to "configs/config.yaml".
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "configs/config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads, defaults and validates the configuration at path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.CacheFile == "" {
		cfg.CacheFile = DefaultCacheFile
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	cfg.APIKey = os.ExpandEnv(cfg.APIKey)

	if err := validateProviders(cfg.Providers); err != nil {
		return nil, err
	}
	return &cfg, nil
}
