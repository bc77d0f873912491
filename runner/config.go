package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/mesh-lab/mesh-runner/pkg/envutil"
)

// EnvPrefix is the environment variable prefix for run configuration
// overrides, e.g. MESH_RUNNER_ARCH=hrnet-w48.
const EnvPrefix = "MESH_RUNNER_"

// UpdateFromEnvs updates fields from environmental variables.
// Empty values are ignored and do not overwrite fields.
// WARNING: The environmental variable value always overwrites current
// field values if there's a conflict.
func (cfg *Config) UpdateFromEnvs() error {
	return envutil.Parse(EnvPrefix, cfg)
}

// Sync writes the populated configuration as YAML to ConfigPath.
func (cfg *Config) Sync() error {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(os.TempDir(), cfg.Name+".yaml")
	}
	if !filepath.IsAbs(cfg.ConfigPath) {
		p, err := filepath.Abs(cfg.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to 'filepath.Abs(%s)' %v", cfg.ConfigPath, err)
		}
		cfg.ConfigPath = p
	}

	d, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to 'yaml.Marshal' %v", err)
	}
	if err = os.WriteFile(cfg.ConfigPath, d, 0600); err != nil {
		return fmt.Errorf("failed to write file %q (%v)", cfg.ConfigPath, err)
	}
	return nil
}

// Load loads a run configuration from a YAML file written by Sync.
func Load(p string) (cfg *Config, err error) {
	var d []byte
	d, err = os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	cfg = new(Config)
	if err = yaml.Unmarshal(d, cfg); err != nil {
		return nil, err
	}
	cfg.ConfigPath, err = filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
