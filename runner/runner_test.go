package runner

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func evalConfig(t *testing.T) *Config {
	cfg := NewDefault()
	cfg.EvalOnly = true
	cfg.ValYAML = "data/human3.6m/valid.protocol2.yaml"
	cfg.ResumeCheckpoint = "models/checkpoint/model.bin"
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestConfigArgsEvalOnly(t *testing.T) {
	cfg := evalConfig(t)
	cfg.NoiseFactor = "0.05"
	require.NoError(t, cfg.ValidateAndSetDefaults())

	expected := []string{
		"python",
		"-m", "torch.distributed.launch",
		"--nproc_per_node=8",
		"tools/run_bodymesh.py",
		"--val_yaml=data/human3.6m/valid.protocol2.yaml",
		"--arch=hrnet-w64",
		"--num_workers=4",
		"--per_gpu_eval_batch_size=30",
		"--num_hidden_layers=4",
		"--num_attention_heads=4",
		"--input_feat_dim=2051,512,128",
		"--hidden_feat_dim=1024,256,64",
		"--resume_checkpoint=models/checkpoint/model.bin",
		"--output_dir=" + cfg.OutputDir,
		"--run_eval_only",
		"--smpl_param_noise_factor=0.05",
	}
	require.Equal(t, expected, cfg.Args())
}

func TestConfigArgsTrain(t *testing.T) {
	cfg := NewDefault()
	cfg.TrainYAML = "data/human3.6m/train.yaml"
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	require.NoError(t, cfg.ValidateAndSetDefaults())

	args := cfg.Args()
	joined := strings.Join(args, " ")
	require.Contains(t, joined, "--train_yaml=data/human3.6m/train.yaml")
	require.Contains(t, joined, "--per_gpu_train_batch_size=30")
	require.Contains(t, joined, "--lr=0.0001")
	require.Contains(t, joined, "--num_train_epochs=200")
	require.NotContains(t, joined, "--run_eval_only")
	require.NotContains(t, joined, "--smpl_param_noise_factor")
}

func TestConfigArgsMultiNode(t *testing.T) {
	cfg := evalConfig(t)
	cfg.NumNodes = 2
	cfg.NodeRank = 1
	cfg.MasterAddress = "10.0.0.1"
	require.NoError(t, cfg.ValidateAndSetDefaults())

	joined := strings.Join(cfg.Args(), " ")
	require.Contains(t, joined, "--nnodes=2")
	require.Contains(t, joined, "--node_rank=1")
	require.Contains(t, joined, "--master_addr=10.0.0.1")
	require.Contains(t, joined, "--master_port=29500")

	// single node jobs need no rendezvous flags
	cfg2 := evalConfig(t)
	require.NoError(t, cfg2.ValidateAndSetDefaults())
	require.NotContains(t, strings.Join(cfg2.Args(), " "), "--nnodes")
}

func TestConfigArgsExtraArgs(t *testing.T) {
	cfg := evalConfig(t)
	cfg.ExtraArgs = `--seed 88 --config_name "my config"`
	require.NoError(t, cfg.ValidateAndSetDefaults())

	args := cfg.Args()
	n := len(args)
	require.Equal(t, []string{"--seed", "88", "--config_name", "my config"}, args[n-4:])
}

func TestValidateAndSetDefaults(t *testing.T) {
	tt := []struct {
		name   string
		mutate func(cfg *Config)
		errSub string
	}{
		{
			name:   "eval without val yaml",
			mutate: func(cfg *Config) { cfg.ValYAML = "" },
			errSub: "requires ValYAML",
		},
		{
			name:   "eval without checkpoint",
			mutate: func(cfg *Config) { cfg.ResumeCheckpoint = "" },
			errSub: "requires ResumeCheckpoint",
		},
		{
			name:   "noise factor not a number",
			mutate: func(cfg *Config) { cfg.NoiseFactor = "abc" },
			errSub: "failed to parse NoiseFactor",
		},
		{
			name:   "noise factor out of range",
			mutate: func(cfg *Config) { cfg.NoiseFactor = "1.5" },
			errSub: "out of range",
		},
		{
			name: "noise factor on training run",
			mutate: func(cfg *Config) {
				cfg.EvalOnly = false
				cfg.TrainYAML = "data/train.yaml"
				cfg.NoiseFactor = "0.05"
			},
			errSub: "evaluation-only",
		},
		{
			name: "training without train yaml",
			mutate: func(cfg *Config) {
				cfg.EvalOnly = false
			},
			errSub: "requires TrainYAML",
		},
		{
			name: "multi node without master address",
			mutate: func(cfg *Config) {
				cfg.NumNodes = 2
			},
			errSub: "requires MasterAddress",
		},
		{
			name: "node rank out of range",
			mutate: func(cfg *Config) {
				cfg.NodeRank = 3
			},
			errSub: "NodeRank",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := evalConfig(t)
			tc.mutate(cfg)
			err := cfg.ValidateAndSetDefaults()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errSub)
		})
	}
}

func TestValidateDefaultsPaths(t *testing.T) {
	cfg := evalConfig(t)
	require.NoError(t, cfg.ValidateAndSetDefaults())
	require.Equal(t, filepath.Join(cfg.OutputDir, cfg.Name+".log"), cfg.RunLogPath)
	require.Equal(t, "0s", cfg.RunTimeoutString)
}
