package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/zeu5/robot-goal-env/util"
)

type experimentRunConfig struct {
	// execution configuration
	CurrentRun int
	Episodes   int
	Horizon    int
	Analyzers  map[string]Analyzer
	Timeout    time.Duration
	Context    context.Context

	// thresholds to abort the experiment
	ConsecutiveTimeoutsAbort int
	ConsecutiveErrorsAbort   int

	// record flags
	RecordTraces bool
	RecordTimes  bool

	// reports configuration
	ReportsPrintConfig *ReportsPrintConfig
	ReportSavePath     string

	// where progress lines go, Output wins when set
	Output *progressLine
	Out    io.Writer

	//misc
	LongestExpNameLen int
}

// ExperimentResult summarizes one experiment run
type ExperimentResult struct {
	Name      string
	Episodes  int
	Valid     int
	Successes int
	TimedOut  int
	Errors    int
	Aborted   bool
}

// Experiment encapsulates the different parameters to configure an agent and analyze the traces
type Experiment struct {
	Name         string
	policy       Policy
	environment  GoalEnv
	resetOptions ResetOptions
}

// NewExperiment creates a new experiment instance
func NewExperiment(name string, policy Policy, environment GoalEnv) *Experiment {
	return &Experiment{
		Name:        name,
		policy:      policy,
		environment: environment,
	}
}

// WithResetOptions sets the options passed to every reset
func (e *Experiment) WithResetOptions(opts ResetOptions) *Experiment {
	e.resetOptions = opts
	return e
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		panic(err)
	}

	util.AppendToFile(tracesFile, string(bs))
}

func (e *Experiment) status(rConfig *experimentRunConfig, r *ExperimentResult) string {
	EPPadding := len(strconv.Itoa(rConfig.Episodes))
	rate := 0.0
	if r.Valid > 0 {
		rate = float64(r.Successes) / float64(r.Valid) * 100
	}
	return fmt.Sprintf("Exp:%*s, Eps:%*d/%d, Valid:%*d, Success:%*d [%5.1f%%], TOut:%*d, Err:%*d",
		rConfig.LongestExpNameLen, e.Name, EPPadding, r.Episodes, rConfig.Episodes, EPPadding, r.Valid,
		EPPadding, r.Successes, rate, EPPadding, r.TimedOut, EPPadding, r.Errors)
}

// Run the experiment for the specified number of episodes, feeding every trace to the analyzers
func (e *Experiment) Run(rConfig *experimentRunConfig) *ExperimentResult {
	result := &ExperimentResult{Name: e.Name}
	select {
	case <-rConfig.Context.Done():
		return result
	default:
	}

	if rConfig.RecordTraces {
		tracesFolder := path.Join(rConfig.ReportSavePath, "traces")
		if _, err := os.Stat(tracesFolder); err != nil {
			os.MkdirAll(tracesFolder, os.ModePerm)
		}
	}

	consecutiveTimeouts := 0
	consecutiveErrors := 0
	episodeTimes := make([]time.Duration, 0)

	agent := NewAgent(&AgentConfig{
		Episodes:     rConfig.Episodes,
		Horizon:      rConfig.Horizon,
		Policy:       e.policy,
		Environment:  e.environment,
		ResetOptions: e.resetOptions,
	})

	e.print(rConfig, e.status(rConfig, result))

	for result.Episodes < rConfig.Episodes {
		select {
		case <-rConfig.Context.Done():
			return result
		default:
		}

		eCtx := NewEpisodeContext(rConfig.Context, result.Episodes, e.Name, rConfig.Timeout)
		eCtx.SetReportPath(path.Join(rConfig.ReportSavePath, "epReports"))

		e.runEpisode(eCtx, agent, rConfig.ReportsPrintConfig)
		episodeTimes = append(episodeTimes, eCtx.RunDuration)
		result.Episodes += 1

		// possible outcomes of the episode
		if eCtx.TimedOut {
			result.TimedOut += 1
			consecutiveTimeouts += 1
		} else {
			consecutiveTimeouts = 0
		}

		if eCtx.Err != nil {
			result.Errors += 1
			consecutiveErrors += 1
		} else {
			consecutiveErrors = 0
		}

		if !eCtx.TimedOut && eCtx.Err == nil {
			result.Valid += 1
			if eCtx.Trace.Succeeded() {
				result.Successes += 1
			}
		}

		if rConfig.RecordTraces {
			e.recordTrace(rConfig, eCtx.Trace)
		}

		// analyze the trace, even if the episode timed out or ended with an error
		for _, a := range rConfig.Analyzers {
			a.Analyze(rConfig.CurrentRun, result.Episodes, e.Name, eCtx.Trace)
		}

		if len(episodeTimes) == 10 {
			if rConfig.RecordTimes {
				e.printEpTimesMs(episodeTimes, rConfig.ReportSavePath)
			}
			episodeTimes = make([]time.Duration, 0)
		}

		// check to eventually abort the experiment
		if consecutiveTimeouts >= rConfig.ConsecutiveTimeoutsAbort {
			e.print(rConfig, fmt.Sprintf("Aborting experiment %s : %d consecutive timeouts", e.Name, consecutiveTimeouts))
			result.Aborted = true
			break
		}
		if consecutiveErrors >= rConfig.ConsecutiveErrorsAbort {
			e.print(rConfig, fmt.Sprintf("Aborting experiment %s : %d consecutive errors (last: %v)", e.Name, consecutiveErrors, eCtx.Err))
			result.Aborted = true
			break
		}

		e.print(rConfig, e.status(rConfig, result))
	}
	return result
}

func (e *Experiment) print(rConfig *experimentRunConfig, s string) {
	if rConfig.Output != nil {
		rConfig.Output.set(s)
		return
	}
	fmt.Fprintf(rConfig.Out, "\r%s", s)
}

func (e *Experiment) runEpisode(eCtx *EpisodeContext, agent *Agent, reportConfig *ReportsPrintConfig) {
	defer func() {
		if r := recover(); r != nil {
			eCtx.SetError(fmt.Errorf("%v", r))
		}
		eCtx.Cancel()
	}()

	select {
	case <-eCtx.Context.Done():
		return
	default:
	}

	done := make(chan struct{})
	var panicked interface{}

	start := time.Now()
	go func() {
		defer close(done)
		defer func() {
			panicked = recover()
		}()
		agent.RunEpisode(eCtx)
	}()

	select {
	case <-eCtx.Context.Done():
		// the environment is single threaded, wait for the agent to observe the cancellation
		<-done
	case <-done:
	}
	if errors.Is(eCtx.Context.Err(), context.DeadlineExceeded) {
		eCtx.SetTimedOut()
	}
	eCtx.RunDuration = time.Since(start)
	eCtx.Report.AddTimeEntry(eCtx.RunDuration, "return_time", "experiment.runEpisode")
	if panicked != nil {
		eCtx.SetError(fmt.Errorf("%v", panicked))
	}

	if reportConfig == nil {
		return
	}
	switch {
	case eCtx.TimedOut && reportConfig.PrintIfTimeout:
		eCtx.RecordReport()
	case eCtx.Err != nil && reportConfig.PrintIfError:
		eCtx.RecordReport()
	case eCtx.ToPrintReport:
		eCtx.RecordReport()
	}
}

func (e *Experiment) printEpTimesMs(epTimes []time.Duration, basePath string) {
	tMilliseconds := ""
	for _, tm := range epTimes {
		tMilliseconds = fmt.Sprintf("%s%7d, ", tMilliseconds, tm.Milliseconds())
	}
	filePath := path.Join(basePath, "epTimes", e.Name+"_ms.txt")
	util.AppendToFile(filePath, tMilliseconds)
}

// Reset clears the learned policy state between runs
func (e *Experiment) Reset() {
	e.policy.Reset()
}

// REPORT CONFIGURATION

// Configuration of the report
type ReportsPrintConfig struct {
	PrintIfError   bool `json:"print_if_error"`   // print the report if an error occurs
	PrintIfTimeout bool `json:"print_if_timeout"` // print the report if a timeout occurs
}

// configuration of the report printing for both errors and timeouts
func RepConfigStandard() *ReportsPrintConfig {
	return &ReportsPrintConfig{
		PrintIfError:   true,
		PrintIfTimeout: true,
	}
}

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the traces to a DataSet
type Analyzer interface {
	// Run, episode, experiment, trace
	Analyze(int, int, string, *Trace)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, experiment names, datasets
type Comparator func(int, []string, []DataSet)

func NoopComparator() Comparator {
	return func(int, []string, []DataSet) {}
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // number of steps

	RecordPath   string              // path to store the results
	ReportConfig *ReportsPrintConfig // configuration for the reports
	Timeout      time.Duration       // timeout for each episode

	// thresholds to abort the experiment
	ConsecutiveTimeoutsAbort int
	ConsecutiveErrorsAbort   int

	// record flags
	RecordTraces bool
	RecordTimes  bool

	// run experiments concurrently, each owns its environment
	Parallel bool
	// seconds between refreshes of the live terminal output
	PrintFrequency int
	// where the sequential progress lines go, defaults to stdout
	Out io.Writer
}

type analysis struct {
	ctor       func() Analyzer
	comparator Comparator
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments []*Experiment
	analyses    map[string]analysis
	cConfig     *ComparisonConfig

	Results [][]*ExperimentResult
}

// NewComparison creates a comparison instance and prepares the record folders
func NewComparison(config *ComparisonConfig) *Comparison {
	if config.RecordPath != "" {
		foldersToCreate := []string{"epReports"}
		if config.RecordTraces {
			foldersToCreate = append(foldersToCreate, "traces")
		}
		if config.RecordTimes {
			foldersToCreate = append(foldersToCreate, "epTimes")
		}
		for _, s := range foldersToCreate {
			fldPath := path.Join(config.RecordPath, s)
			if _, ok := os.Stat(fldPath); ok != nil {
				os.MkdirAll(fldPath, 0777)
			}
		}
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}

	return &Comparison{
		Experiments: make([]*Experiment, 0),
		analyses:    make(map[string]analysis),
		cConfig:     config,
	}
}

// AddAnalysis adds an analyzer and comparator to the comparison. Each
// experiment gets its own analyzer built by ctor.
func (c *Comparison) AddAnalysis(name string, ctor func() Analyzer, comparator Comparator) {
	c.analyses[name] = analysis{ctor: ctor, comparator: comparator}
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig
	if cfg.RecordPath == "" {
		return nil
	}
	out := make(map[string]interface{})
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["horizon"] = cfg.Horizon
	out["record_traces"] = cfg.RecordTraces
	out["record_times"] = cfg.RecordTimes
	out["report_config"] = cfg.ReportConfig
	out["parallel"] = cfg.Parallel
	if cfg.Timeout != 0 {
		out["timeout"] = cfg.Timeout.String()
	}

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments

	analyzers := make([]string, 0)
	for name := range c.analyses {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	bs, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(cfg.RecordPath, "comparison_config.json"), bs, 0644)
}

// Run the comparison
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil {
		return fmt.Errorf("recording comparison config: %w", err)
	}

	longestNameLen := 0
	for _, e := range c.Experiments {
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	for run := 0; run < c.cConfig.Runs; run++ {
		fmt.Fprintf(c.cConfig.Out, "Run %d\n", run+1)

		// analyzers per experiment, indexed like c.Experiments
		analyzers := make([]map[string]Analyzer, len(c.Experiments))
		for i := range c.Experiments {
			analyzers[i] = make(map[string]Analyzer)
			for name, a := range c.analyses {
				analyzers[i][name] = a.ctor()
			}
		}

		var results []*ExperimentResult
		if c.cConfig.Parallel {
			results = c.runParallel(ctx, run, longestNameLen, analyzers)
		} else {
			results = make([]*ExperimentResult, len(c.Experiments))
			for i, e := range c.Experiments {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				results[i] = e.Run(c.prepareRunConfig(ctx, run, longestNameLen, analyzers[i], nil))
				fmt.Fprintln(c.cConfig.Out)
			}
		}
		c.Results = append(c.Results, results)

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			names[i] = e.Name
			e.Reset()
		}
		for name, a := range c.analyses {
			datasets := make([]DataSet, len(c.Experiments))
			for i := range c.Experiments {
				datasets[i] = analyzers[i][name].DataSet()
			}
			a.comparator(run, names, datasets)
		}
	}
	return ctx.Err()
}

func (c *Comparison) runParallel(ctx context.Context, run, longestNameLen int, analyzers []map[string]Analyzer) []*ExperimentResult {
	freq := c.cConfig.PrintFrequency
	if freq <= 0 {
		freq = 1
	}
	board := newProgressBoard(c.cConfig.Out, len(c.Experiments), time.Duration(freq)*time.Second)
	board.start()
	defer board.close()

	results := make([]*ExperimentResult, len(c.Experiments))
	wg := new(sync.WaitGroup)
	for i, e := range c.Experiments {
		wg.Add(1)
		go func(i int, e *Experiment) {
			defer wg.Done()
			line := board.lines[i]
			results[i] = e.Run(c.prepareRunConfig(ctx, run, longestNameLen, analyzers[i], line))
			line.finish()
		}(i, e)
	}
	wg.Wait()
	return results
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run, longestExpNameLen int, analyzers map[string]Analyzer, output *progressLine) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:               run,
		Episodes:                 c.cConfig.Episodes,
		Horizon:                  c.cConfig.Horizon,
		Analyzers:                analyzers,
		RecordTraces:             c.cConfig.RecordTraces,
		RecordTimes:              c.cConfig.RecordTimes,
		ReportsPrintConfig:       c.cConfig.ReportConfig,
		ReportSavePath:           c.cConfig.RecordPath,
		Timeout:                  c.cConfig.Timeout,
		Context:                  ctx,
		ConsecutiveErrorsAbort:   c.cConfig.ConsecutiveErrorsAbort,
		ConsecutiveTimeoutsAbort: c.cConfig.ConsecutiveTimeoutsAbort,
		Output:                   output,
		Out:                      c.cConfig.Out,

		LongestExpNameLen: longestExpNameLen,
	}

	if rCfg.ConsecutiveErrorsAbort == 0 {
		rCfg.ConsecutiveErrorsAbort = 10
	}
	if rCfg.ConsecutiveTimeoutsAbort == 0 {
		rCfg.ConsecutiveTimeoutsAbort = 10
	}
	return rCfg
}
