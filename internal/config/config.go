// Package config loads runtime settings from flags, environment variables
// with the CCLOG_ prefix, and an optional .cclog.yaml file, in that
// precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved application configuration.
type Settings struct {
	ClaudeDir        string `mapstructure:"claude_dir"`
	ProjectsDir      string `mapstructure:"projects_dir"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	WatchEnabled     bool   `mapstructure:"watch_enabled"`
	WatchDebounceMS  int    `mapstructure:"watch_debounce_ms"`
	SearchMaxResults int    `mapstructure:"search_max_results"`
	SnippetChars     int    `mapstructure:"search_snippet_chars"`
	HubQueueSize     int    `mapstructure:"hub_queue_size"`
}

// SetDefaults registers every setting's default on a viper instance.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("claude_dir", filepath.Join(home, ".claude"))
	v.SetDefault("projects_dir", "")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5173)
	v.SetDefault("watch_enabled", true)
	v.SetDefault("watch_debounce_ms", 100)
	v.SetDefault("search_max_results", 50)
	v.SetDefault("search_snippet_chars", 150)
	v.SetDefault("hub_queue_size", 64)
}

// Load resolves Settings from the given viper instance.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return Settings{}, fmt.Errorf("invalid port %d", s.Port)
	}
	if s.WatchDebounceMS <= 0 {
		s.WatchDebounceMS = 100
	}
	if s.SnippetChars <= 0 {
		s.SnippetChars = 150
	}
	if s.SearchMaxResults <= 0 {
		s.SearchMaxResults = 50
	}
	return s, nil
}

// ResolvedProjectsDir returns the directory holding the encoded project
// directories. An explicit projects_dir wins over claude_dir/projects.
func (s Settings) ResolvedProjectsDir() string {
	if s.ProjectsDir != "" {
		return s.ProjectsDir
	}
	return filepath.Join(s.ClaudeDir, "projects")
}

// Debounce returns the watcher debounce as a duration.
func (s Settings) Debounce() time.Duration {
	return time.Duration(s.WatchDebounceMS) * time.Millisecond
}

// Addr returns the host:port listen address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
