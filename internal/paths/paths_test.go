package paths

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform swaps the platform lookups for the duration of a test.
func fakePlatform(t *testing.T, goos, home, wd string) {
	t.Helper()
	saved := platform
	t.Cleanup(func() { platform = saved })

	platform.goos = goos
	platform.homeDir = func() (string, error) { return home, nil }
	platform.userConfigDir = func() (string, error) {
		return filepath.Join(home, "Library", "Application Support"), nil
	}
	platform.getwd = func() (string, error) { return wd, nil }
}

func TestDefaultConfigDir(t *testing.T) {
	t.Run("linux uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		fakePlatform(t, "linux", "/home/u", "/work")
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/grove", got)
	})

	t.Run("linux falls back to ~/.config", func(t *testing.T) {
		fakePlatform(t, "linux", "/home/u", "/work")
		t.Setenv("XDG_CONFIG_HOME", "")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/u/.config/grove", got)
	})

	t.Run("darwin uses the user config dir", func(t *testing.T) {
		fakePlatform(t, "darwin", "/Users/u", "/work")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/Users/u/Library/Application Support/grove", got)
	})

	t.Run("home lookup failure", func(t *testing.T) {
		fakePlatform(t, "linux", "", "/work")
		platform.homeDir = func() (string, error) { return "", errors.New("no home") }
		t.Setenv("XDG_CONFIG_HOME", "")
		_, err := DefaultConfigDir()
		assert.Error(t, err)
	})
}

func TestDefaultDataDir(t *testing.T) {
	t.Run("linux uses XDG_DATA_HOME when set", func(t *testing.T) {
		fakePlatform(t, "linux", "/home/u", "/work")
		t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
		got, err := DefaultDataDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-data/grove", got)
	})

	t.Run("linux falls back to ~/.local/share", func(t *testing.T) {
		fakePlatform(t, "linux", "/home/u", "/work")
		t.Setenv("XDG_DATA_HOME", "")
		got, err := DefaultDataDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/u/.local/share/grove", got)
	})

	t.Run("darwin shares the config dir", func(t *testing.T) {
		fakePlatform(t, "darwin", "/Users/u", "/work")
		got, err := DefaultDataDir()
		require.NoError(t, err)
		assert.Equal(t, "/Users/u/Library/Application Support/grove", got)
	})
}

func TestResolveConfigDir(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		envVal string
		want   string
	}{
		{"flag wins over env", "/explicit/config", "/env/config", "/explicit/config"},
		{"env wins when flag empty", "", "/env/config", "/env/config"},
		{"platform default when both empty", "", "", "/home/u/.config/grove"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePlatform(t, "linux", "/home/u", "/work")
			t.Setenv("XDG_CONFIG_HOME", "")
			t.Setenv(EnvConfigDir, tt.envVal)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	tests := []struct {
		name        string
		flag        string
		configValue string
		envVal      string
		want        string
	}{
		{"flag wins over all", "/flag/data", "/config/data", "/env/data", "/flag/data"},
		{"config value wins over env", "", "/config/data", "/env/data", "/config/data"},
		{"env wins when flag and config empty", "", "", "/env/data", "/env/data"},
		{"platform default when all empty", "", "", "", "/home/u/.local/share/grove"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePlatform(t, "linux", "/home/u", t.TempDir())
			t.Setenv("XDG_DATA_HOME", "")
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir_PrefersLocalDir(t *testing.T) {
	wd := t.TempDir()
	fakePlatform(t, "linux", "/home/u", wd)
	t.Setenv(EnvDataDir, "")
	require.NoError(t, os.Mkdir(filepath.Join(wd, LocalDataDirName), 0o755))

	got, err := ResolveDataDir("", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, LocalDataDirName), got)
}

func TestResolve_RelativeBecomesAbsolute(t *testing.T) {
	t.Setenv(EnvConfigDir, "relative/env")
	got, err := ResolveConfigDir("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)

	t.Setenv(EnvDataDir, "")
	got, err = ResolveDataDir("", "relative/config")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/grove", "config.yaml"), ConfigFile("/etc/grove"))
}
