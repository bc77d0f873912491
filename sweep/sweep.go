// Package sweep runs the evaluation entry point repeatedly across a
// range of SMPL parameter noise factors, one blocking invocation per
// value.
package sweep

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-lab/mesh-runner/pkg/envutil"
	"github.com/mesh-lab/mesh-runner/runner"
)

// Config defines parameters for a noise factor sweep.
type Config struct {
	Prompt bool `json:"-"`

	Stopc     chan struct{}  `json:"-"`
	Logger    *zap.Logger    `json:"-"`
	LogWriter io.Writer      `json:"-"`
	Invoker   *runner.Invoker `json:"-"`

	// Base is the run configuration shared by every sweep entry. The
	// noise factor, output directory, and run log path are overridden
	// per value; evaluation-only mode is forced.
	Base *runner.Config `json:"base"`

	// Start, Stop, and Step bound the closed-interval sweep sequence.
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step"`

	// ContinueOnFailure is true to keep sweeping after a failed run
	// and collect all results. By default the sweep stops on the
	// first failure.
	ContinueOnFailure bool `json:"continue_on_failure"`

	// ReportDir is the parent directory of per-value output
	// directories. Defaults to the base run's output directory.
	ReportDir string `json:"report_dir"`
	// ReportDirTarGzPath is the sweep report .tar.gz file path.
	ReportDirTarGzPath string `json:"report_dir_tar_gz_path" read-only:"true"`
	// ResultsPath is the JSON file path to store per-value results.
	ResultsPath string `json:"results_path" read-only:"true"`
}

const (
	DefaultStart = 0.05
	DefaultStop  = 1.0
	DefaultStep  = 0.05
)

// NewDefault returns a new default sweep configuration.
func NewDefault() *Config {
	return &Config{
		Base:  runner.NewDefault(),
		Start: DefaultStart,
		Stop:  DefaultStop,
		Step:  DefaultStep,
	}
}

// EnvPrefix is the environment variable prefix for sweep field
// overrides, e.g. MESH_RUNNER_SWEEP_STEP=0.1.
const EnvPrefix = runner.EnvPrefix + "SWEEP_"

// UpdateFromEnvs updates sweep fields, then base run fields, from
// environmental variables.
func (cfg *Config) UpdateFromEnvs() error {
	if err := envutil.Parse(EnvPrefix, cfg); err != nil {
		return err
	}
	if cfg.Base != nil {
		return cfg.Base.UpdateFromEnvs()
	}
	return nil
}

// ValidateAndSetDefaults returns an error for invalid configurations.
// And updates empty fields with default values. Two sweep values that
// format to the same text would silently share an output directory,
// so they are rejected here.
func (cfg *Config) ValidateAndSetDefaults() error {
	if cfg.Base == nil {
		return fmt.Errorf("nil Base")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if cfg.Start == 0 && cfg.Stop == 0 && cfg.Step == 0 {
		cfg.Start, cfg.Stop, cfg.Step = DefaultStart, DefaultStop, DefaultStep
	}
	if cfg.Step <= 0 {
		return fmt.Errorf("invalid Step %v", cfg.Step)
	}
	if cfg.Start < 0 || cfg.Start > cfg.Stop {
		return fmt.Errorf("invalid bounds [%v, %v]", cfg.Start, cfg.Stop)
	}

	// the sweep varies an evaluation-only flag
	cfg.Base.EvalOnly = true
	if cfg.Base.NoiseFactor != "" {
		return fmt.Errorf("Base.NoiseFactor %q is owned by the sweep; leave it empty", cfg.Base.NoiseFactor)
	}
	if err := cfg.Base.ValidateAndSetDefaults(); err != nil {
		return fmt.Errorf("invalid Base (%v)", err)
	}

	if cfg.ReportDir == "" {
		cfg.ReportDir = cfg.Base.OutputDir
	}
	if cfg.ReportDirTarGzPath == "" {
		cfg.ReportDirTarGzPath = cfg.ReportDir + ".tar.gz"
	}
	if !strings.HasSuffix(cfg.ReportDirTarGzPath, ".tar.gz") {
		return fmt.Errorf("ReportDirTarGzPath %q requires .tar.gz suffix", cfg.ReportDirTarGzPath)
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = filepath.Join(cfg.ReportDir, "sweep-results.json")
	}

	vals, err := cfg.Values()
	if err != nil {
		return err
	}
	seen := make(map[string]float64, len(vals))
	for _, v := range vals {
		text := cfg.FormatValue(v)
		if prev, ok := seen[text]; ok {
			return fmt.Errorf("sweep values %v and %v both format to %q; output directories would collide", prev, v, text)
		}
		seen[text] = v
	}

	return nil
}

// Values returns the closed-interval sweep sequence. The sequence is
// computed in scaled integer arithmetic so binary floating point can
// neither drop nor duplicate steps; with the default bounds it is
// exactly 0.05, 0.10, ..., 1.00.
func (cfg *Config) Values() ([]float64, error) {
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("invalid Step %v", cfg.Step)
	}
	scale := math.Pow10(cfg.precision())
	startN := int64(math.Round(cfg.Start * scale))
	stopN := int64(math.Round(cfg.Stop * scale))
	stepN := int64(math.Round(cfg.Step * scale))
	if stepN == 0 {
		return nil, fmt.Errorf("Step %v vanishes at precision %d", cfg.Step, cfg.precision())
	}

	vals := make([]float64, 0, (stopN-startN)/stepN+1)
	for n := startN; n <= stopN; n += stepN {
		vals = append(vals, float64(n)/scale)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty sweep for bounds [%v, %v] step %v", cfg.Start, cfg.Stop, cfg.Step)
	}
	return vals, nil
}

// FormatValue renders one sweep value; the same text is used for the
// noise factor flag and the output directory suffix so outputs remain
// traceable to their sweep value.
func (cfg *Config) FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', cfg.precision(), 64)
}

// precision is the number of decimal places needed to represent the
// bounds and the step exactly.
func (cfg *Config) precision() int {
	p := decimals(cfg.Step)
	if d := decimals(cfg.Start); d > p {
		p = d
	}
	if d := decimals(cfg.Stop); d > p {
		p = d
	}
	return p
}

func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// RunConfigs derives one run configuration per sweep value: a copy of
// the base with the noise factor flag and the output directory suffix
// overridden with the identically formatted value.
func (cfg *Config) RunConfigs() ([]*runner.Config, error) {
	vals, err := cfg.Values()
	if err != nil {
		return nil, err
	}

	rcs := make([]*runner.Config, 0, len(vals))
	for _, v := range vals {
		text := cfg.FormatValue(v)
		rc := *cfg.Base
		rc.Name = fmt.Sprintf("%s-noise-%s", cfg.Base.Name, text)
		rc.EvalOnly = true
		rc.NoiseFactor = text
		rc.OutputDir = filepath.Join(cfg.ReportDir, "noise_"+text)
		rc.RunLogPath = filepath.Join(rc.OutputDir, rc.Name+".log")
		if err := rc.ValidateAndSetDefaults(); err != nil {
			return nil, fmt.Errorf("invalid run config for value %q (%v)", text, err)
		}
		rcs = append(rcs, &rc)
	}
	return rcs, nil
}
