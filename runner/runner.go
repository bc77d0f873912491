// Package runner defines a single training or evaluation run of the
// body mesh estimation model, launched through an external distributed
// training launcher.
package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/mitchellh/colorstring"

	"github.com/mesh-lab/mesh-runner/pkg/logutil"
	"github.com/mesh-lab/mesh-runner/pkg/randutil"
	"github.com/mesh-lab/mesh-runner/pkg/timeutil"
)

// Config defines one invocation of the external training/evaluation
// entry point. Fields map one-to-one onto the entry point's CLI
// surface; Args serializes them.
type Config struct {
	// Name is the run name, used for default output paths and logs.
	Name string `json:"name"`
	// ConfigPath is the configuration file path.
	ConfigPath string `json:"config_path"`

	// LogColor is true to output logs in color.
	LogColor bool `json:"log_color"`
	// LogColorOverride is not empty to override "LogColor" setting.
	// Useful to skip terminal color check when there is no color device.
	LogColorOverride string `json:"log_color_override"`
	// LogLevel configures log level. Only supports debug, info, warn, error, panic, or fatal. Default 'info'.
	LogLevel string `json:"log_level"`
	// LogOutputs is a list of log outputs. Valid values are 'default', 'stderr', 'stdout', or file names.
	LogOutputs []string `json:"log_outputs"`

	// Python is the Python interpreter used to start the launcher.
	Python string `json:"python"`
	// LaunchModule is the distributed launcher module, started with
	// "python -m". The launcher owns process spawning and rendezvous;
	// this layer only passes parameters through.
	LaunchModule string `json:"launch_module"`
	// NprocPerNode is the number of worker processes the launcher
	// spawns on this node, one per device.
	NprocPerNode int `json:"nproc_per_node"`
	// NumNodes is the total number of nodes participating in the job.
	NumNodes int `json:"num_nodes"`
	// NodeRank is the rank of this node, in [0, NumNodes).
	NodeRank int `json:"node_rank"`
	// MasterAddress and MasterPort locate the rendezvous endpoint.
	// Only serialized when NumNodes > 1.
	MasterAddress string `json:"master_address"`
	MasterPort    int    `json:"master_port"`
	// EntryScript is the training/evaluation script the launcher runs.
	EntryScript string `json:"entry_script"`

	// TrainYAML is the training data manifest.
	TrainYAML string `json:"train_yaml"`
	// ValYAML is the validation data manifest.
	ValYAML string `json:"val_yaml"`
	// Arch is the image feature extractor architecture name.
	Arch string `json:"arch"`
	// NumWorkers is the per-process data loader worker count.
	NumWorkers int `json:"num_workers"`

	PerGPUTrainBatchSize int `json:"per_gpu_train_batch_size"`
	PerGPUEvalBatchSize  int `json:"per_gpu_eval_batch_size"`

	// LearningRate and NumTrainEpochs configure the optimizer schedule.
	// Training mode only.
	LearningRate   float64 `json:"learning_rate"`
	NumTrainEpochs int     `json:"num_train_epochs"`

	// NumHiddenLayers and NumAttentionHeads size each transformer block.
	NumHiddenLayers   int `json:"num_hidden_layers"`
	NumAttentionHeads int `json:"num_attention_heads"`
	// InputFeatDims and HiddenFeatDims are per-block feature
	// dimensions, serialized comma-separated.
	InputFeatDims  []int `json:"input_feat_dims"`
	HiddenFeatDims []int `json:"hidden_feat_dims"`

	// ResumeCheckpoint is the model checkpoint to load before the run.
	// Required in evaluation-only mode.
	ResumeCheckpoint string `json:"resume_checkpoint"`
	// OutputDir is where the run writes checkpoints and metrics. Each
	// run must own a distinct directory.
	OutputDir string `json:"output_dir"`

	// EvalOnly is true to skip training and only run evaluation.
	EvalOnly bool `json:"eval_only"`
	// NoiseFactor scales the synthetic noise applied to ground-truth
	// SMPL parameters during evaluation. Kept textual so the exact
	// same representation appears in the serialized flag and in sweep
	// output directory names. Evaluation-only mode only.
	NoiseFactor string `json:"noise_factor"`

	// ExtraArgs holds additional raw arguments appended to the entry
	// point command line, in shell quoting.
	ExtraArgs string `json:"extra_args"`

	// RunTimeout bounds one invocation. Zero means no timeout; a hung
	// external process then hangs the run.
	RunTimeout       time.Duration `json:"run_timeout"`
	RunTimeoutString string        `json:"run_timeout_string,omitempty" read-only:"true"`
	// RunLogPath is the file the external process output is written to.
	RunLogPath string `json:"run_log_path"`

	extraArgs []string
}

const (
	DefaultPython       = "python"
	DefaultLaunchModule = "torch.distributed.launch"
	DefaultNprocPerNode = 8
	DefaultNumNodes     = 1
	DefaultMasterPort   = 29500
	DefaultEntryScript  = "tools/run_bodymesh.py"

	DefaultArch       = "hrnet-w64"
	DefaultNumWorkers = 4

	DefaultPerGPUTrainBatchSize = 30
	DefaultPerGPUEvalBatchSize  = 30

	DefaultLearningRate   = 1e-4
	DefaultNumTrainEpochs = 200

	DefaultNumHiddenLayers   = 4
	DefaultNumAttentionHeads = 4
)

func defaultInputFeatDims() []int  { return []int{2051, 512, 128} }
func defaultHiddenFeatDims() []int { return []int{1024, 256, 64} }

// NewDefault returns a new default run configuration.
func NewDefault() *Config {
	name := fmt.Sprintf("mesh-%s-%s", timeutil.GetTS(10), randutil.String(12))
	if v := os.Getenv(EnvPrefix + "NAME"); v != "" {
		name = v
	}

	return &Config{
		Name: name,

		LogColor:   true,
		LogLevel:   logutil.DefaultLogLevel,
		LogOutputs: []string{"stderr"},

		Python:       DefaultPython,
		LaunchModule: DefaultLaunchModule,
		NprocPerNode: DefaultNprocPerNode,
		NumNodes:     DefaultNumNodes,
		MasterPort:   DefaultMasterPort,
		EntryScript:  DefaultEntryScript,

		Arch:       DefaultArch,
		NumWorkers: DefaultNumWorkers,

		PerGPUTrainBatchSize: DefaultPerGPUTrainBatchSize,
		PerGPUEvalBatchSize:  DefaultPerGPUEvalBatchSize,

		LearningRate:   DefaultLearningRate,
		NumTrainEpochs: DefaultNumTrainEpochs,

		NumHiddenLayers:   DefaultNumHiddenLayers,
		NumAttentionHeads: DefaultNumAttentionHeads,
		InputFeatDims:     defaultInputFeatDims(),
		HiddenFeatDims:    defaultHiddenFeatDims(),
	}
}

// ValidateAndSetDefaults returns an error for invalid configurations.
// And updates empty fields with default values.
func (cfg *Config) ValidateAndSetDefaults() error {
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("mesh-%s-%s", timeutil.GetTS(10), randutil.String(12))
	}
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	if cfg.LaunchModule == "" {
		cfg.LaunchModule = DefaultLaunchModule
	}
	if cfg.EntryScript == "" {
		cfg.EntryScript = DefaultEntryScript
	}
	if cfg.NprocPerNode == 0 {
		cfg.NprocPerNode = DefaultNprocPerNode
	}
	if cfg.NprocPerNode < 1 {
		return fmt.Errorf("invalid NprocPerNode %d", cfg.NprocPerNode)
	}
	if cfg.NumNodes == 0 {
		cfg.NumNodes = DefaultNumNodes
	}
	if cfg.NumNodes < 1 {
		return fmt.Errorf("invalid NumNodes %d", cfg.NumNodes)
	}
	if cfg.NodeRank < 0 || cfg.NodeRank >= cfg.NumNodes {
		return fmt.Errorf("NodeRank %d out of range for NumNodes %d", cfg.NodeRank, cfg.NumNodes)
	}
	if cfg.NumNodes > 1 {
		if cfg.MasterAddress == "" {
			return fmt.Errorf("NumNodes %d requires MasterAddress", cfg.NumNodes)
		}
		if cfg.MasterPort == 0 {
			cfg.MasterPort = DefaultMasterPort
		}
	}

	if cfg.Arch == "" {
		return fmt.Errorf("empty Arch")
	}
	if cfg.NumWorkers < 0 {
		return fmt.Errorf("invalid NumWorkers %d", cfg.NumWorkers)
	}
	if cfg.PerGPUEvalBatchSize < 1 {
		return fmt.Errorf("invalid PerGPUEvalBatchSize %d", cfg.PerGPUEvalBatchSize)
	}
	if len(cfg.InputFeatDims) == 0 {
		return fmt.Errorf("empty InputFeatDims")
	}
	if len(cfg.HiddenFeatDims) == 0 {
		return fmt.Errorf("empty HiddenFeatDims")
	}
	for _, d := range append(append([]int{}, cfg.InputFeatDims...), cfg.HiddenFeatDims...) {
		if d < 1 {
			return fmt.Errorf("invalid feature dimension %d", d)
		}
	}
	if cfg.NumHiddenLayers < 1 {
		return fmt.Errorf("invalid NumHiddenLayers %d", cfg.NumHiddenLayers)
	}
	if cfg.NumAttentionHeads < 1 {
		return fmt.Errorf("invalid NumAttentionHeads %d", cfg.NumAttentionHeads)
	}

	if cfg.EvalOnly {
		if cfg.ValYAML == "" {
			return fmt.Errorf("evaluation-only run requires ValYAML")
		}
		if cfg.ResumeCheckpoint == "" {
			return fmt.Errorf("evaluation-only run requires ResumeCheckpoint")
		}
		if cfg.NoiseFactor != "" {
			nf, err := strconv.ParseFloat(cfg.NoiseFactor, 64)
			if err != nil {
				return fmt.Errorf("failed to parse NoiseFactor %q (%v)", cfg.NoiseFactor, err)
			}
			if nf < 0 || nf > 1 {
				return fmt.Errorf("NoiseFactor %q out of range [0, 1]", cfg.NoiseFactor)
			}
		}
	} else {
		if cfg.NoiseFactor != "" {
			return fmt.Errorf("NoiseFactor %q is evaluation-only; unset EvalOnly conflicts", cfg.NoiseFactor)
		}
		if cfg.TrainYAML == "" {
			return fmt.Errorf("training run requires TrainYAML")
		}
		if cfg.PerGPUTrainBatchSize < 1 {
			return fmt.Errorf("invalid PerGPUTrainBatchSize %d", cfg.PerGPUTrainBatchSize)
		}
		if cfg.LearningRate <= 0 {
			return fmt.Errorf("invalid LearningRate %v", cfg.LearningRate)
		}
		if cfg.NumTrainEpochs < 1 {
			return fmt.Errorf("invalid NumTrainEpochs %d", cfg.NumTrainEpochs)
		}
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(os.TempDir(), cfg.Name)
	}
	if cfg.RunLogPath == "" {
		cfg.RunLogPath = filepath.Join(cfg.OutputDir, cfg.Name+".log")
	}
	if cfg.RunTimeout < 0 {
		return fmt.Errorf("invalid RunTimeout %v", cfg.RunTimeout)
	}
	cfg.RunTimeoutString = cfg.RunTimeout.String()

	cfg.extraArgs = nil
	if cfg.ExtraArgs != "" {
		ss, err := shellquote.Split(cfg.ExtraArgs)
		if err != nil {
			return fmt.Errorf("failed to split ExtraArgs %q (%v)", cfg.ExtraArgs, err)
		}
		cfg.extraArgs = ss
	}

	return nil
}

// Args serializes the configuration into the external launcher and
// entry point command line. The first element is the executable.
func (cfg *Config) Args() (args []string) {
	args = []string{
		cfg.Python,
		"-m", cfg.LaunchModule,
		fmt.Sprintf("--nproc_per_node=%d", cfg.NprocPerNode),
	}
	if cfg.NumNodes > 1 {
		args = append(args,
			fmt.Sprintf("--nnodes=%d", cfg.NumNodes),
			fmt.Sprintf("--node_rank=%d", cfg.NodeRank),
			"--master_addr="+cfg.MasterAddress,
			fmt.Sprintf("--master_port=%d", cfg.MasterPort),
		)
	}
	args = append(args, cfg.EntryScript)

	if cfg.TrainYAML != "" {
		args = append(args, "--train_yaml="+cfg.TrainYAML)
	}
	if cfg.ValYAML != "" {
		args = append(args, "--val_yaml="+cfg.ValYAML)
	}
	args = append(args,
		"--arch="+cfg.Arch,
		fmt.Sprintf("--num_workers=%d", cfg.NumWorkers),
		fmt.Sprintf("--per_gpu_eval_batch_size=%d", cfg.PerGPUEvalBatchSize),
		fmt.Sprintf("--num_hidden_layers=%d", cfg.NumHiddenLayers),
		fmt.Sprintf("--num_attention_heads=%d", cfg.NumAttentionHeads),
		"--input_feat_dim="+joinInts(cfg.InputFeatDims),
		"--hidden_feat_dim="+joinInts(cfg.HiddenFeatDims),
	)
	if !cfg.EvalOnly {
		args = append(args,
			fmt.Sprintf("--per_gpu_train_batch_size=%d", cfg.PerGPUTrainBatchSize),
			"--lr="+strconv.FormatFloat(cfg.LearningRate, 'g', -1, 64),
			fmt.Sprintf("--num_train_epochs=%d", cfg.NumTrainEpochs),
		)
	}
	if cfg.ResumeCheckpoint != "" {
		args = append(args, "--resume_checkpoint="+cfg.ResumeCheckpoint)
	}
	args = append(args, "--output_dir="+cfg.OutputDir)
	if cfg.EvalOnly {
		args = append(args, "--run_eval_only")
		if cfg.NoiseFactor != "" {
			args = append(args, "--smpl_param_noise_factor="+cfg.NoiseFactor)
		}
	}
	args = append(args, cfg.extraArgs...)
	return args
}

// CommandLine returns the shell-quoted command line for logging.
func (cfg *Config) CommandLine() string {
	return shellquote.Join(cfg.Args()...)
}

// Colorize prints colorized input, if color output is supported.
func (cfg *Config) Colorize(input string) string {
	colorize := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !cfg.LogColor,
		Reset:   true,
	}
	return colorize.Color(input)
}

func joinInts(ds []int) string {
	ss := make([]string, len(ds))
	for i, d := range ds {
		ss[i] = strconv.Itoa(d)
	}
	return strings.Join(ss, ",")
}
