package sweep

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-lab/mesh-runner/runner"
)

func evalBase(t *testing.T) *runner.Config {
	base := runner.NewDefault()
	base.EvalOnly = true
	base.ValYAML = "data/human3.6m/valid.protocol2.yaml"
	base.ResumeCheckpoint = "models/checkpoint/model.bin"
	base.OutputDir = filepath.Join(t.TempDir(), "report")
	return base
}

func TestValuesDefault(t *testing.T) {
	cfg := NewDefault()
	vals, err := cfg.Values()
	require.NoError(t, err)
	require.Len(t, vals, 20)

	expected := []string{
		"0.05", "0.10", "0.15", "0.20", "0.25",
		"0.30", "0.35", "0.40", "0.45", "0.50",
		"0.55", "0.60", "0.65", "0.70", "0.75",
		"0.80", "0.85", "0.90", "0.95", "1.00",
	}
	texts := make([]string, len(vals))
	for i, v := range vals {
		texts[i] = cfg.FormatValue(v)
	}
	require.Equal(t, expected, texts)
}

func TestValuesCustom(t *testing.T) {
	cfg := NewDefault()
	cfg.Start, cfg.Stop, cfg.Step = 0.1, 0.5, 0.1
	vals, err := cfg.Values()
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5}, vals)
	require.Equal(t, "0.1", cfg.FormatValue(vals[0]))
}

func TestValuesSingle(t *testing.T) {
	cfg := NewDefault()
	cfg.Start, cfg.Stop, cfg.Step = 0.5, 0.5, 0.05
	vals, err := cfg.Values()
	require.NoError(t, err)
	require.Equal(t, []float64{0.5}, vals)
}

func TestValuesInvalidStep(t *testing.T) {
	cfg := NewDefault()
	cfg.Step = 0
	_, err := cfg.Values()
	require.Error(t, err)

	cfg.Step = -0.05
	_, err = cfg.Values()
	require.Error(t, err)
}

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := NewDefault()
	cfg.Base = evalBase(t)
	require.NoError(t, cfg.ValidateAndSetDefaults())

	require.True(t, cfg.Base.EvalOnly)
	require.Equal(t, cfg.Base.OutputDir, cfg.ReportDir)
	require.Equal(t, cfg.ReportDir+".tar.gz", cfg.ReportDirTarGzPath)
	require.Equal(t, filepath.Join(cfg.ReportDir, "sweep-results.json"), cfg.ResultsPath)
}

func TestValidateRejectsPresetNoiseFactor(t *testing.T) {
	cfg := NewDefault()
	cfg.Base = evalBase(t)
	cfg.Base.NoiseFactor = "0.5"
	err := cfg.ValidateAndSetDefaults()
	require.Error(t, err)
	require.Contains(t, err.Error(), "owned by the sweep")
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := NewDefault()
	cfg.Base = evalBase(t)
	cfg.Start, cfg.Stop = 0.5, 0.1
	require.Error(t, cfg.ValidateAndSetDefaults())

	cfg = NewDefault()
	cfg.Base = evalBase(t)
	cfg.Step = -1
	require.Error(t, cfg.ValidateAndSetDefaults())
}

func TestRunConfigsTextIdentity(t *testing.T) {
	cfg := NewDefault()
	cfg.Base = evalBase(t)
	require.NoError(t, cfg.ValidateAndSetDefaults())

	rcs, err := cfg.RunConfigs()
	require.NoError(t, err)
	require.Len(t, rcs, 20)

	for _, rc := range rcs {
		// the flag value and the directory suffix must be the exact
		// same text so outputs stay traceable to their sweep value
		require.Equal(t, "noise_"+rc.NoiseFactor, filepath.Base(rc.OutputDir))
		require.Equal(t, cfg.ReportDir, filepath.Dir(rc.OutputDir))

		joined := strings.Join(rc.Args(), " ")
		require.Contains(t, joined, "--smpl_param_noise_factor="+rc.NoiseFactor)
		require.Contains(t, joined, "--output_dir="+rc.OutputDir)
		require.Contains(t, joined, "--run_eval_only")
	}

	require.Equal(t, "0.05", rcs[0].NoiseFactor)
	require.Equal(t, "1.00", rcs[len(rcs)-1].NoiseFactor)
	require.Equal(t, cfg.Base.Name+"-noise-0.05", rcs[0].Name)
}

func TestRunConfigsDistinctOutputDirs(t *testing.T) {
	cfg := NewDefault()
	cfg.Base = evalBase(t)
	require.NoError(t, cfg.ValidateAndSetDefaults())

	rcs, err := cfg.RunConfigs()
	require.NoError(t, err)

	seen := make(map[string]struct{}, len(rcs))
	for _, rc := range rcs {
		_, ok := seen[rc.OutputDir]
		require.Falsef(t, ok, "duplicate output dir %q", rc.OutputDir)
		seen[rc.OutputDir] = struct{}{}
	}
}
