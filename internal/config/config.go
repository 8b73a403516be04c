// Package config loads the bot configuration from the environment (and an
// optional .env file) and the list of audio nodes to connect to.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keshon/lavalink-client/pkg/lavalink"
)

// AutoResumeKey makes Load generate a random resume key.
const AutoResumeKey = "auto"

type Config struct {
	DiscordToken          string   `env:"DISCORD_TOKEN,required,notEmpty"`
	DiscordShardCount     int      `env:"DISCORD_SHARD_COUNT" envDefault:"1"`
	DiscordGuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`

	NodesFile     string `env:"LAVALINK_NODES_FILE"`
	Host          string `env:"LAVALINK_HOST" envDefault:"127.0.0.1"`
	Port          int    `env:"LAVALINK_PORT" envDefault:"2333"`
	Password      string `env:"LAVALINK_PASSWORD" envDefault:"youshallnotpass"`
	ResumeKey     string `env:"LAVALINK_RESUME_KEY"`
	ResumeTimeout int    `env:"LAVALINK_RESUME_TIMEOUT" envDefault:"60"`
	ConnectBack   bool   `env:"LAVALINK_CONNECT_BACK"`
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DiscordShardCount < 1 {
		return nil, fmt.Errorf("DISCORD_SHARD_COUNT must be at least 1, got %d", cfg.DiscordShardCount)
	}
	for i, id := range cfg.DiscordGuildBlacklist {
		cfg.DiscordGuildBlacklist[i] = strings.TrimSpace(id)
	}
	cfg.ResumeKey = resumeKey(cfg.ResumeKey)
	return &cfg, nil
}

type nodesFile struct {
	Nodes []lavalink.NodeConfig `yaml:"nodes"`
}

// Nodes returns the nodes to connect to: the entries of NodesFile when it is
// set, otherwise a single node built from the LAVALINK_* variables.
func (c *Config) Nodes() ([]lavalink.NodeConfig, error) {
	if c.NodesFile == "" {
		return []lavalink.NodeConfig{{
			Name:          "main",
			Host:          c.Host,
			Port:          c.Port,
			Password:      c.Password,
			ResumeKey:     c.ResumeKey,
			ResumeTimeout: c.ResumeTimeout,
		}}, nil
	}

	raw, err := os.ReadFile(c.NodesFile)
	if err != nil {
		return nil, fmt.Errorf("read nodes file: %w", err)
	}
	var f nodesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse nodes file %s: %w", c.NodesFile, err)
	}
	if len(f.Nodes) == 0 {
		return nil, fmt.Errorf("nodes file %s lists no nodes", c.NodesFile)
	}

	seen := make(map[string]bool, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Host == "" || n.Port == 0 {
			return nil, fmt.Errorf("node %d in %s needs a host and a port", i, c.NodesFile)
		}
		if n.Name == "" {
			n.Name = fmt.Sprintf("node-%d", i+1)
		}
		if seen[n.Name] {
			return nil, fmt.Errorf("duplicate node name %q in %s", n.Name, c.NodesFile)
		}
		seen[n.Name] = true
		n.ResumeKey = resumeKey(n.ResumeKey)
	}
	return f.Nodes, nil
}

func resumeKey(key string) string {
	if strings.EqualFold(key, AutoResumeKey) {
		return uuid.NewString()
	}
	return key
}
