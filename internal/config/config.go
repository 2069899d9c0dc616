// Package config loads the sirad.yaml build configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// EnvPIISalt overrides pii_salt so the secret can stay out of the file.
const EnvPIISalt = "SIRAD_PII_SALT"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "sirad.yaml"

// Config is one build configuration.
//
// Relative paths are resolved against the directory of the config file.
type Config struct {
	// Version names the research snapshot (research_v<version>.db).
	Version string `yaml:"version"`

	// PIISalt keys the pii_id permutation and SSN hashing.
	PIISalt string `yaml:"pii_salt"`

	// HashSSN stores keyed SSN digests instead of digits.
	HashSSN bool `yaml:"hash_ssn"`

	// Layouts is the directory of CUE layout files.
	Layouts string `yaml:"layouts"`

	// Raw is the directory of raw dataset files.
	Raw string `yaml:"raw"`

	Stores Stores `yaml:"stores"`

	// Datasets lists the files to ingest. Empty means one file per
	// layout, <raw>/<dataset>.txt, delimited by '|'.
	Datasets []Dataset `yaml:"datasets"`

	// IngestWorkers bounds concurrent dataset loads.
	IngestWorkers int `yaml:"ingest_workers"`

	// MetricsFile, if set, receives a prometheus textfile after a build.
	MetricsFile string `yaml:"metrics_file"`

	dir string
}

// Stores are the store locations.
type Stores struct {
	Data     string `yaml:"data"`
	PII      string `yaml:"pii"`
	Link     string `yaml:"link"`
	Research string `yaml:"research"` // directory of research_v<version>.db
	Export   string `yaml:"export"`   // directory of exported text files
}

// Dataset is one raw input file.
type Dataset struct {
	Name      string `yaml:"name"`
	File      string `yaml:"file"`
	Delimiter string `yaml:"delimiter"`
}

// Delim returns the field delimiter, '|' when unset.
func (d Dataset) Delim() rune {
	if d.Delimiter == "" {
		return '|'
	}
	r, _ := utf8.DecodeRuneInString(d.Delimiter)
	return r
}

// Default returns the configuration used when no file is given, rooted at
// dir.
func Default(dir string) *Config {
	c := &Config{dir: dir}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Layouts == "" {
		c.Layouts = "layouts"
	}
	if c.Raw == "" {
		c.Raw = "raw"
	}
	if c.Stores.Data == "" {
		c.Stores.Data = filepath.Join("build", "data.db")
	}
	if c.Stores.PII == "" {
		c.Stores.PII = filepath.Join("build", "pii.db")
	}
	if c.Stores.Link == "" {
		c.Stores.Link = filepath.Join("build", "link.db")
	}
	if c.Stores.Research == "" {
		c.Stores.Research = "build"
	}
	if c.Stores.Export == "" {
		c.Stores.Export = filepath.Join("build", "research")
	}
	if c.IngestWorkers <= 0 {
		c.IngestWorkers = 4
	}
	if salt, ok := os.LookupEnv(EnvPIISalt); ok && salt != "" {
		c.PIISalt = salt
	}
}

// Load reads and validates a config file.
// Unknown keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes config YAML rooted at dir.
func Parse(data []byte, dir string) (*Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.dir = dir
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.PIISalt == "" {
		errs = append(errs, fmt.Errorf("pii_salt is required (or set %s)", EnvPIISalt))
	}
	seen := make(map[string]bool)
	for i, d := range c.Datasets {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("datasets[%d]: name is required", i))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("datasets[%d]: duplicate dataset %q", i, d.Name))
		}
		seen[d.Name] = true
		if utf8.RuneCountInString(d.Delimiter) > 1 {
			errs = append(errs, fmt.Errorf("datasets[%d]: delimiter must be a single character", i))
		}
		if d.Delimiter == "\n" || d.Delimiter == "\r" || d.Delimiter == `"` {
			errs = append(errs, fmt.Errorf("datasets[%d]: delimiter %q is not allowed", i, d.Delimiter))
		}
	}
	return errors.Join(errs...)
}

// Path resolves p against the config directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Dir is the directory relative paths resolve against.
func (c *Config) Dir() string {
	return c.dir
}

// DatasetFile is the absolute path of a dataset's raw file.
func (c *Config) DatasetFile(d Dataset) string {
	file := d.File
	if file == "" {
		file = d.Name + ".txt"
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.Path(c.Raw), file)
}

// ExportDir is where text exports of the configured version go.
func (c *Config) ExportDir() string {
	return filepath.Join(c.Path(c.Stores.Export), c.Version)
}
