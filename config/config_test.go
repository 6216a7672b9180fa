package config

import (
	"os"
	"path/filepath"
	"testing"
	"tiledosm/importing"
	"tiledosm/util"
)

func TestDefault_isValid(t *testing.T) {
	util.AssertNil(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	// Arrange
	filename := filepath.Join(t.TempDir(), "config.yaml")
	util.Must(t, os.WriteFile(filename, []byte(`
base-path: /data/tiles
zoom: 12
build:
  workers: 8
query:
  mapped-indexes: true
`), 0644))

	// Act
	config, err := Load(filename)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, "/data/tiles", config.BasePath)
	util.AssertEqual(t, uint32(12), config.Zoom)
	util.AssertEqual(t, 8, config.Build.Workers)
	util.AssertTrue(t, config.Query.MappedIndexes)

	// Defaults
	util.AssertEqual(t, "info", config.Logging)
	util.AssertEqual(t, Default().Build.IndexWriters, config.Build.IndexWriters)
	util.AssertEqual(t, "8080", config.Server.Port)

	util.AssertNil(t, config.Validate())
	util.AssertEqual(t, uint32(12), config.ImportConfig().MaxZoom)
	util.AssertTrue(t, config.QueryOptions().MappedIndexes)
}

func TestLoad_invalidYaml(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	util.Must(t, os.WriteFile(filename, []byte("zoom: [1, 2"), 0644))

	_, err := Load(filename)
	util.AssertNotNil(t, err)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	util.AssertErrorIs(t, os.ErrNotExist, err)
}

func TestValidate(t *testing.T) {
	testCases := map[string]func(c *Config){
		"odd zoom":       func(c *Config) { c.Zoom = 13 },
		"empty path":     func(c *Config) { c.BasePath = "" },
		"no workers":     func(c *Config) { c.Build.Workers = 0 },
		"no writers":     func(c *Config) { c.Build.IndexWriters = 0 },
		"negative split": func(c *Config) { c.Build.InlineSplitBytes = -1 },
		"log level":      func(c *Config) { c.Logging = "verbose" },
		"only cert":      func(c *Config) { c.Server.CertFile = "cert.pem" },
	}

	for name, modify := range testCases {
		config := Default()
		modify(config)

		err := config.Validate()
		if err == nil {
			t.Errorf("Expected validation error for case '%s'", name)
		}
	}

	config := Default()
	config.Zoom = 13
	util.AssertErrorIs(t, importing.ErrInvalidMaxZoom, config.Validate())
}
