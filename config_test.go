package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StyleSection, cfg.MetadataStyle)
	assert.Equal(t, ModeStream, cfg.OutputMode)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.UTC, cfg.location())
}

func TestDefaultConfig_Environment(t *testing.T) {
	t.Setenv("ENEX2MD_METADATA", "frontmatter")
	t.Setenv("ENEX2MD_OUTPUT", "disk")
	t.Setenv("ENEX2MD_DIR", "/tmp/notes")
	t.Setenv("ENEX2MD_TIMEZONE", "local")
	t.Setenv("ENEX2MD_WORKERS", "8")
	t.Setenv("ENEX2MD_MAX_WIDTH", "1024")

	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StyleFrontmatter, cfg.MetadataStyle)
	assert.Equal(t, ModeDisk, cfg.OutputMode)
	assert.Equal(t, "/tmp/notes", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 1024, cfg.Images.maxWidth)
	assert.Equal(t, time.Local, cfg.location())
}

func TestDefaultConfig_BadNumberFallsBack(t *testing.T) {
	t.Setenv("ENEX2MD_WORKERS", "many")
	assert.Equal(t, 4, defaultConfig().Workers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"unknown style", func(c *Config) { c.MetadataStyle = "toml" }, `MetadataStyle must be one of [section frontmatter], got "toml"`},
		{"unknown mode", func(c *Config) { c.OutputMode = "pdf" }, `OutputMode must be one of [stream disk epub], got "pdf"`},
		{"epub without file", func(c *Config) { c.OutputMode = ModeEpub }, "EpubFile is required when OutputMode epub"},
		{"disk without dir", func(c *Config) { c.OutputMode = ModeDisk; c.OutputDir = "" }, "OutputDir is required when OutputMode disk"},
		{"bad timezone", func(c *Config) { c.Timezone = "mars" }, "Timezone must be one of"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "Workers failed min=1"},
		{"bad quality", func(c *Config) { c.Images.quality = 0 }, "quality 1-100"},
		{"negative width", func(c *Config) { c.Images.maxWidth = -5 }, "image width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsEveryField(t *testing.T) {
	cfg := defaultConfig()
	cfg.MetadataStyle = "x"
	cfg.Workers = 100
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MetadataStyle")
	assert.Contains(t, err.Error(), "Workers failed max=64")
}
