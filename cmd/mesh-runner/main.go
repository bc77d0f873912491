// mesh-runner launches training and evaluation runs of the body mesh
// estimation model through an external distributed training launcher.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-lab/mesh-runner/pkg/logutil"
	"github.com/mesh-lab/mesh-runner/runner"
)

var rootCmd = &cobra.Command{
	Use:        "mesh-runner",
	Short:      "Body mesh estimation training/evaluation runner",
	SuggestFor: []string{"meshrunner", "mesh-run"},
}

func init() {
	cobra.EnablePrefixMatching = true
}

var (
	prompt     bool
	logLevel   string
	logOutputs []string
	configPath string

	name         string
	python       string
	launchModule string
	nprocPerNode int
	numNodes     int
	nodeRank     int
	masterAddr   string
	masterPort   int
	entryScript  string

	trainYAML  string
	valYAML    string
	arch       string
	numWorkers int

	perGPUTrainBatchSize int
	perGPUEvalBatchSize  int

	learningRate   float64
	numTrainEpochs int

	numHiddenLayers   int
	numAttentionHeads int
	inputFeatDims     []int
	hiddenFeatDims    []int

	resumeCheckpoint string
	outputDir        string
	extraArgs        string
	runTimeout       time.Duration
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&prompt, "prompt", false, "'true' to enable prompt mode")
	pf.StringVar(&logLevel, "log-level", logutil.DefaultLogLevel, "Logging level")
	pf.StringSliceVar(&logOutputs, "log-outputs", []string{"stderr"}, "Additional logger outputs")
	pf.StringVar(&configPath, "config", "", "run configuration YAML path; takes precedence over individual run flags")

	pf.StringVar(&name, "name", "", "run name; auto-generated when empty")
	pf.StringVar(&python, "python", runner.DefaultPython, "Python interpreter for the launcher")
	pf.StringVar(&launchModule, "launch-module", runner.DefaultLaunchModule, "distributed launcher module started with 'python -m'")
	pf.IntVar(&nprocPerNode, "nproc-per-node", runner.DefaultNprocPerNode, "worker processes the launcher spawns on this node")
	pf.IntVar(&numNodes, "num-nodes", runner.DefaultNumNodes, "total number of nodes in the job")
	pf.IntVar(&nodeRank, "node-rank", 0, "rank of this node")
	pf.StringVar(&masterAddr, "master-address", "", "rendezvous address, required when num-nodes > 1")
	pf.IntVar(&masterPort, "master-port", runner.DefaultMasterPort, "rendezvous port")
	pf.StringVar(&entryScript, "entry-script", runner.DefaultEntryScript, "training/evaluation script the launcher runs")

	pf.StringVar(&trainYAML, "train-yaml", "", "training data manifest")
	pf.StringVar(&valYAML, "val-yaml", "", "validation data manifest")
	pf.StringVar(&arch, "arch", runner.DefaultArch, "image feature extractor architecture")
	pf.IntVar(&numWorkers, "num-workers", runner.DefaultNumWorkers, "per-process data loader workers")

	pf.IntVar(&perGPUTrainBatchSize, "per-gpu-train-batch-size", runner.DefaultPerGPUTrainBatchSize, "per-device training batch size")
	pf.IntVar(&perGPUEvalBatchSize, "per-gpu-eval-batch-size", runner.DefaultPerGPUEvalBatchSize, "per-device evaluation batch size")

	pf.Float64Var(&learningRate, "lr", runner.DefaultLearningRate, "learning rate")
	pf.IntVar(&numTrainEpochs, "num-train-epochs", runner.DefaultNumTrainEpochs, "training epoch count")

	pf.IntVar(&numHiddenLayers, "num-hidden-layers", runner.DefaultNumHiddenLayers, "transformer blocks per encoder")
	pf.IntVar(&numAttentionHeads, "num-attention-heads", runner.DefaultNumAttentionHeads, "attention heads per block")
	pf.IntSliceVar(&inputFeatDims, "input-feat-dims", []int{2051, 512, 128}, "per-block input feature dimensions")
	pf.IntSliceVar(&hiddenFeatDims, "hidden-feat-dims", []int{1024, 256, 64}, "per-block hidden feature dimensions")

	pf.StringVar(&resumeCheckpoint, "resume-checkpoint", "", "model checkpoint to load before the run")
	pf.StringVar(&outputDir, "output-dir", "", "run output directory; auto-generated when empty")
	pf.StringVar(&extraArgs, "extra-args", "", "raw arguments appended to the entry point command line, shell-quoted")
	pf.DurationVar(&runTimeout, "run-timeout", 0, "per-invocation timeout; 0 means no timeout")

	rootCmd.AddCommand(
		newTrain(),
		newEvaluate(),
		newSweep(),
		newVersion(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mesh-runner failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// runConfig assembles the run configuration from the config file or
// the individual flags, then applies MESH_RUNNER_* env overrides.
func runConfig() (*runner.Config, error) {
	if configPath != "" {
		cfg, err := runner.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err = cfg.UpdateFromEnvs(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := runner.NewDefault()
	if name != "" {
		cfg.Name = name
	}
	cfg.LogLevel = logLevel
	cfg.LogOutputs = logOutputs

	cfg.Python = python
	cfg.LaunchModule = launchModule
	cfg.NprocPerNode = nprocPerNode
	cfg.NumNodes = numNodes
	cfg.NodeRank = nodeRank
	cfg.MasterAddress = masterAddr
	cfg.MasterPort = masterPort
	cfg.EntryScript = entryScript

	cfg.TrainYAML = trainYAML
	cfg.ValYAML = valYAML
	cfg.Arch = arch
	cfg.NumWorkers = numWorkers

	cfg.PerGPUTrainBatchSize = perGPUTrainBatchSize
	cfg.PerGPUEvalBatchSize = perGPUEvalBatchSize

	cfg.LearningRate = learningRate
	cfg.NumTrainEpochs = numTrainEpochs

	cfg.NumHiddenLayers = numHiddenLayers
	cfg.NumAttentionHeads = numAttentionHeads
	cfg.InputFeatDims = inputFeatDims
	cfg.HiddenFeatDims = hiddenFeatDims

	cfg.ResumeCheckpoint = resumeCheckpoint
	cfg.OutputDir = outputDir
	cfg.ExtraArgs = extraArgs
	cfg.RunTimeout = runTimeout

	if err := cfg.UpdateFromEnvs(); err != nil {
		return nil, err
	}
	return cfg, nil
}
