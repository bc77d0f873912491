package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/mholt/archiver/v3"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/mesh-lab/mesh-runner/pkg/fileutil"
	"github.com/mesh-lab/mesh-runner/runner"
)

// Runner executes a configured sweep.
type Runner interface {
	// Name returns the name of the sweep runner.
	Name() string
	// Apply runs every sweep entry sequentially and reports.
	Apply() error
	// Results returns the results of completed invocations.
	Results() []runner.Result
}

func New(cfg *Config) Runner {
	return &sweeper{cfg: cfg}
}

type sweeper struct {
	cfg     *Config
	results []runner.Result
}

var pkgName = path.Base(reflect.TypeOf(sweeper{}).PkgPath())

func (sw *sweeper) Name() string { return pkgName }

func (sw *sweeper) Results() []runner.Result { return sw.results }

func (sw *sweeper) Apply() error {
	if ok := sw.runPrompt("apply"); !ok {
		return errors.New("cancelled")
	}

	rcs, err := sw.cfg.RunConfigs()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(sw.cfg.ReportDir, 0755); err != nil {
		return err
	}
	if err = fileutil.IsDirWriteable(sw.cfg.ReportDir); err != nil {
		return err
	}
	sw.cfg.Logger.Info("mkdir report dir", zap.String("dir", sw.cfg.ReportDir))

	iv := sw.cfg.Invoker
	if iv == nil {
		iv = runner.NewInvoker(sw.cfg.Logger, sw.cfg.LogWriter, nil)
	}

	now := time.Now()
	var errs []string
	for i, rc := range rcs {
		select {
		case <-sw.cfg.Stopc:
			sw.cfg.Logger.Warn("stopping sweep; stop signal received",
				zap.Int("completed", i),
				zap.Int("total", len(rcs)),
			)
			errs = append(errs, "sweep stopped")
			return sw.finish(now, errs)
		default:
		}

		sw.cfg.Logger.Info("running sweep entry",
			zap.Int("index", i),
			zap.Int("total", len(rcs)),
			zap.String("noise-factor", rc.NoiseFactor),
			zap.String("output-dir", rc.OutputDir),
		)

		res, rerr := iv.Run(context.Background(), rc)
		sw.results = append(sw.results, res)
		if rerr == nil {
			continue
		}

		sw.cfg.Logger.Warn("sweep entry failed",
			zap.String("noise-factor", rc.NoiseFactor),
			zap.Int("exit-code", res.ExitCode),
			zap.Error(rerr),
		)
		errs = append(errs, rerr.Error())
		if !sw.cfg.ContinueOnFailure {
			sw.cfg.Logger.Warn("stopping sweep on first failure",
				zap.Int("completed", i+1),
				zap.Int("total", len(rcs)),
			)
			break
		}
	}

	return sw.finish(now, errs)
}

func (sw *sweeper) finish(started time.Time, errs []string) error {
	if werr := sw.writeResults(); werr != nil {
		errs = append(errs, werr.Error())
	}
	sw.renderResults()
	if aerr := sw.compressReports(); aerr != nil {
		errs = append(errs, aerr.Error())
	}

	sw.cfg.Logger.Info("finished sweep",
		zap.Int("completed-runs", len(sw.results)),
		zap.String("took", time.Since(started).String()),
		zap.Int("errors", len(errs)),
	)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

func (sw *sweeper) writeResults() error {
	d, err := json.Marshal(sw.results)
	if err != nil {
		return err
	}
	if err = os.WriteFile(sw.cfg.ResultsPath, d, 0600); err != nil {
		return err
	}
	sw.cfg.Logger.Info("wrote sweep results", zap.String("path", sw.cfg.ResultsPath))
	return nil
}

func (sw *sweeper) renderResults() {
	if sw.cfg.LogWriter == nil {
		return
	}
	tb := tablewriter.NewWriter(sw.cfg.LogWriter)
	tb.SetAutoWrapText(false)
	tb.SetHeader([]string{"noise factor", "exit code", "took", "output dir"})
	for _, res := range sw.results {
		noise := strings.TrimPrefix(res.Name, sw.cfg.Base.Name+"-noise-")
		tb.Append([]string{noise, strconv.Itoa(res.ExitCode), res.TookString, res.OutputDir})
	}
	fmt.Fprintln(sw.cfg.LogWriter)
	tb.Render()
	fmt.Fprintln(sw.cfg.LogWriter)
}

func (sw *sweeper) compressReports() error {
	sw.cfg.Logger.Info("tar-gzipping report dir",
		zap.String("report-dir", sw.cfg.ReportDir),
		zap.String("file-path", sw.cfg.ReportDirTarGzPath),
	)
	if err := os.RemoveAll(sw.cfg.ReportDirTarGzPath); err != nil {
		sw.cfg.Logger.Warn("failed to remove temp file", zap.Error(err))
		return err
	}

	if err := archiver.Archive([]string{sw.cfg.ReportDir}, sw.cfg.ReportDirTarGzPath); err != nil {
		sw.cfg.Logger.Warn("archive failed", zap.Error(err))
		return err
	}
	stat, err := os.Stat(sw.cfg.ReportDirTarGzPath)
	if err != nil {
		sw.cfg.Logger.Warn("failed to os stat", zap.Error(err))
		return err
	}

	sz := humanize.Bytes(uint64(stat.Size()))
	sw.cfg.Logger.Info("tar-gzipped report dir",
		zap.String("report-dir", sw.cfg.ReportDir),
		zap.String("file-path", sw.cfg.ReportDirTarGzPath),
		zap.String("file-size", sz),
	)
	return nil
}

func (sw *sweeper) runPrompt(action string) (ok bool) {
	if sw.cfg.Prompt {
		msg := fmt.Sprintf("Ready to %q resources, should we continue?", action)
		prompt := promptui.Select{
			Label: msg,
			Items: []string{
				"No, cancel it!",
				fmt.Sprintf("Yes, let's %q!", action),
			},
		}
		idx, answer, err := prompt.Run()
		if err != nil {
			panic(err)
		}
		if idx != 1 {
			fmt.Printf("cancelled %q [index %d, answer %q]\n", action, idx, answer)
			return false
		}
	}
	return true
}
