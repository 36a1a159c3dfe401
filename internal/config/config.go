// Package config loads the a665ctl tool configuration and media set
// descriptions, both stored as YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/compiler"
)

type ManifestSigning struct {
	PrivateKey  string `yaml:"privateKey"`
	Certificate string `yaml:"certificate"`
}

// Config holds the defaults applied by a665ctl. Command line flags override
// individual values.
type Config struct {
	Version            arinc665.SupportedVersion   `yaml:"version"`
	CheckFileIntegrity bool                        `yaml:"checkFileIntegrity"`
	LoadHeaderPolicy   compiler.FileCreationPolicy `yaml:"loadHeaderPolicy"`
	BatchFilePolicy    compiler.FileCreationPolicy `yaml:"batchFilePolicy"`
	DigestAlgorithm    string                      `yaml:"digestAlgorithm"`
	ManifestSigning    ManifestSigning             `yaml:"manifestSigning"`
	Logs               common.LogConfig            `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Version:            arinc665.Supplement345,
		CheckFileIntegrity: true,
		LoadHeaderPolicy:   compiler.PolicyAll,
		BatchFilePolicy:    compiler.PolicyAll,
		DigestAlgorithm:    common.AlgoSHA256,
		Logs: common.LogConfig{
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
	}
}

// LoadConfig reads path on top of Default. Relative paths in the file are
// resolved against the directory of path when they exist there.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Version == arinc665.VersionInvalid {
		cfg.Version = arinc665.Supplement345
	}
	switch cfg.DigestAlgorithm {
	case "":
		cfg.DigestAlgorithm = common.AlgoSHA256
	case common.AlgoSHA256, common.AlgoBLAKE3:
	default:
		return cfg, fmt.Errorf("%s: unknown digest algorithm %q", path, cfg.DigestAlgorithm)
	}
	cfg.ManifestSigning.PrivateKey = resolvePath(cfg.ManifestSigning.PrivateKey)
	cfg.ManifestSigning.Certificate = resolvePath(cfg.ManifestSigning.Certificate)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

// Compiler returns a compiler set up from the configuration.
func (c Config) Compiler() *compiler.Compiler {
	return &compiler.Compiler{
		Version:           c.Version,
		CreateLoadHeaders: c.LoadHeaderPolicy,
		CreateBatchFiles:  c.BatchFilePolicy,
	}
}

func parseCheckValueType(s string) (checkvalue.Type, error) {
	if strings.TrimSpace(s) == "" {
		return checkvalue.NotUsed, nil
	}
	return checkvalue.ParseType(s)
}
