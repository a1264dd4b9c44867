package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/telecord/pkg/config"
	"github.com/tinyland-inc/telecord/pkg/logger"
)

const Logo = "📡"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "TELECORD_CONFIG"

func GetConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".telecord", "config.json")
}

// LoadConfig loads the config and applies its log settings. A non-empty
// path wins over GetConfigPath.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
