package config

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
	"tiledosm/importing"
	"tiledosm/query"
)

type BuildConfig struct {
	Workers          int   `yaml:"workers"`
	InlineSplitBytes int64 `yaml:"inline-split-bytes"`
	IndexWriters     int   `yaml:"index-writers"`
	ReaderProcs      int   `yaml:"reader-procs"` // Number of goroutines decoding PBF input
}

type QueryConfig struct {
	MappedIndexes bool `yaml:"mapped-indexes"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	CertFile string `yaml:"cert-file"`
	KeyFile  string `yaml:"key-file"`
}

// Config contains all settings of the tile database. Values not set in a config file keep their default values.
type Config struct {
	BasePath string       `yaml:"base-path"`
	Zoom     uint32       `yaml:"zoom"`
	Logging  string       `yaml:"logging"`
	Build    BuildConfig  `yaml:"build"`
	Query    QueryConfig  `yaml:"query"`
	Server   ServerConfig `yaml:"server"`
}

func Default() *Config {
	defaultBuildConfig := importing.DefaultBuildConfig()
	return &Config{
		BasePath: "./tiles",
		Zoom:     defaultBuildConfig.MaxZoom,
		Logging:  "info",
		Build: BuildConfig{
			Workers:          defaultBuildConfig.Workers,
			InlineSplitBytes: defaultBuildConfig.InlineSplitBytes,
			IndexWriters:     defaultBuildConfig.IndexWriters,
			ReaderProcs:      1,
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads the YAML config file on top of the default config.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read config file %s", filename)
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse config file %s", filename)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.BasePath == "" {
		return errors.New("Base path must not be empty")
	}

	err := c.ImportConfig().Validate()
	if err != nil {
		return err
	}

	if c.Build.Workers < 1 {
		return errors.Errorf("Number of build workers must be at least 1 but was %d", c.Build.Workers)
	}
	if c.Build.IndexWriters < 1 {
		return errors.Errorf("Number of index writers must be at least 1 but was %d", c.Build.IndexWriters)
	}
	if c.Build.InlineSplitBytes < 0 {
		return errors.Errorf("Inline split size must not be negative but was %d", c.Build.InlineSplitBytes)
	}

	switch c.Logging {
	case "info", "debug", "trace":
	default:
		return errors.Errorf("Unknown log level '%s'", c.Logging)
	}

	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("Certificate file and key file must be set both or none of them")
	}

	return nil
}

func (c *Config) ImportConfig() importing.BuildConfig {
	return importing.BuildConfig{
		MaxZoom:          c.Zoom,
		Workers:          c.Build.Workers,
		InlineSplitBytes: c.Build.InlineSplitBytes,
		IndexWriters:     c.Build.IndexWriters,
	}
}

func (c *Config) QueryOptions() query.Options {
	return query.Options{
		MappedIndexes: c.Query.MappedIndexes,
	}
}
