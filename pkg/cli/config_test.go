package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfig_ActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {Store: "plots.sqlite", Output: "table"},
			"lake":    {Store: "lake.duckdb", Driver: "duckdb", Output: "json"},
		},
	}

	tests := []struct {
		name      string
		override  string
		wantStore string
		wantErr   string
	}{
		{name: "uses current profile", wantStore: "plots.sqlite"},
		{name: "override to lake", override: "lake", wantStore: "lake.duckdb"},
		{name: "nonexistent profile", override: "nonexistent", wantErr: `profile "nonexistent" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.ActiveProfile(tt.override)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStore, p.Store)
		})
	}
}

func TestUserConfig_MissingCurrentProfile(t *testing.T) {
	cfg := &UserConfig{CurrentProfile: "gone", Profiles: map[string]Profile{}}
	p, err := cfg.ActiveProfile("")
	require.NoError(t, err)
	assert.Equal(t, Profile{}, p)
}

func TestLoadSaveUserConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := &UserConfig{
		CurrentProfile: "test",
		Profiles: map[string]Profile{
			"test": {Store: "/data/test.sqlite", GeomFormat: "WKT"},
		},
	}
	require.NoError(t, SaveUserConfig(cfg))

	_, err := os.Stat(filepath.Join(dir, ".vectab", "config.yaml"))
	require.NoError(t, err)

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.CurrentProfile)
	require.Contains(t, loaded.Profiles, "test")
	assert.Equal(t, "/data/test.sqlite", loaded.Profiles["test"].Store)
	assert.Equal(t, "WKT", loaded.Profiles["test"].GeomFormat)
}

func TestLoadUserConfig_NotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadUserConfig()
	require.Error(t, err)
}

func TestLoadUserConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".vectab"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vectab", "config.yaml"), []byte("profiles: [unclosed"), 0o600))

	_, err := LoadUserConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
