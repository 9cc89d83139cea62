// Package paths resolves where grove keeps its configuration and data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under the platform locations.
const AppName = "grove"

// ConfigFileName is the viper config file inside the config directory.
const ConfigFileName = "config.yaml"

// LocalDataDirName is a project-local data directory. When it exists in the
// working directory it is preferred over the platform default.
const LocalDataDirName = ".grove-db"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "GROVE_CONFIG_DIR"
	EnvDataDir   = "GROVE_DATA_DIR"
)

// platform holds the lookups tests override.
var platform = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// xdgDir returns $env/grove, falling back to ~/fallback/grove.
func xdgDir(env string, fallback ...string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platform.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the platform configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/grove (fallback ~/.config/grove)
// macOS:   ~/Library/Application Support/grove
// Windows: %APPDATA%/grove
func DefaultConfigDir() (string, error) {
	if platform.goos == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platform.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultDataDir returns the platform data directory.
//
// Linux:   $XDG_DATA_HOME/grove (fallback ~/.local/share/grove)
// macOS and Windows: same as the config directory.
func DefaultDataDir() (string, error) {
	if platform.goos == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	return DefaultConfigDir()
}

// ResolveConfigDir applies flag > GROVE_CONFIG_DIR > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config value > GROVE_DATA_DIR >
// ./.grove-db when present > DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := platform.getwd()
	if err != nil {
		return "", err
	}
	local := filepath.Join(cwd, LocalDataDirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}
	return DefaultDataDir()
}

// ConfigFile returns the config file path inside dir.
func ConfigFile(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}
