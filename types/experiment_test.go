package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// lineEnv is a one dimensional goal env: the action moves the position,
// the goal is reached at 3.
type lineEnv struct {
	pos      float64
	resets   int
	failStep bool
	block    chan struct{}
}

var _ GoalEnv = &lineEnv{}

func (l *lineEnv) obs() *Observation {
	return &Observation{
		Observation:  []float64{l.pos},
		AchievedGoal: []float64{l.pos},
		DesiredGoal:  []float64{3},
	}
}

func (l *lineEnv) Reset(ctx context.Context, _ ResetOptions) (*Observation, error) {
	if l.block != nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	l.resets++
	l.pos = 0
	return l.obs(), nil
}

func (l *lineEnv) Step(a []float64) (*Observation, float64, bool, Info, error) {
	if l.failStep {
		return nil, 0, false, Info{}, errors.New("engine failure")
	}
	l.pos += a[0]
	info := Info{IsSuccess: l.pos >= 3}
	return l.obs(), l.ComputeReward([]float64{l.pos}, []float64{3}, info), false, info, nil
}

func (l *lineEnv) Render(string) (image.Image, error) {
	return nil, nil
}

func (l *lineEnv) Close() error {
	return nil
}

func (l *lineEnv) Seed(*uint64) []uint64 {
	return []uint64{0}
}

func (l *lineEnv) ActionSpace() *Box {
	return NewBox(-1, 1, 1)
}

func (l *lineEnv) ObservationSpace() *DictSpace {
	return GoalSpace(1, 1)
}

func (l *lineEnv) Metadata() Metadata {
	return Metadata{}
}

func (l *lineEnv) ComputeReward(achieved, desired []float64, _ Info) float64 {
	if achieved[0] >= desired[0] {
		return 0
	}
	return -1
}

// forward always pushes with the full action
type forward struct {
	iterations int
}

func (f *forward) UpdateIteration(int, *Trace) {
	f.iterations++
}

func (f *forward) NextAction(int, *Observation, *Box) ([]float64, bool) {
	return []float64{1}, true
}

func (f *forward) Update(int, *Observation, []float64, float64, *Observation) {}

func (f *forward) Reset() {
	f.iterations = 0
}

func TestAgentRunEpisode(t *testing.T) {
	env := &lineEnv{}
	policy := &forward{}
	agent := NewAgent(&AgentConfig{Episodes: 2, Horizon: 5, Policy: policy, Environment: env})

	traces := make([]*Trace, 0)
	for i := 0; i < 2; i++ {
		eCtx := NewEpisodeContext(context.Background(), i, "line", 0)
		agent.RunEpisode(eCtx)
		eCtx.Cancel()
		traces = append(traces, eCtx.Trace)
	}
	if len(traces) != 2 || env.resets != 2 || policy.iterations != 2 {
		t.Fatalf("traces %d resets %d iterations %d", len(traces), env.resets, policy.iterations)
	}
	tr := traces[0]
	if tr.Len() != 5 || !tr.Succeeded() {
		t.Errorf("trace of %d steps, success %v", tr.Len(), tr.Succeeded())
	}
	if tr.Return() != -2 {
		t.Errorf("return %v", tr.Return())
	}
	prefix, ok := tr.GetPrefix(2)
	if !ok || prefix.Len() != 2 || prefix.Succeeded() {
		t.Errorf("prefix %v %v", prefix, ok)
	}
	if s := tr.Slice(3, 5); s.Len() != 2 {
		t.Errorf("slice of %d", s.Len())
	}
}

// giveUp returns no action from step stop on
type giveUp struct {
	forward
	stop int
}

func (g *giveUp) NextAction(step int, _ *Observation, _ *Box) ([]float64, bool) {
	return []float64{1}, step < g.stop
}

func TestAgentPolicyStopReport(t *testing.T) {
	dir := t.TempDir()
	c := NewComparison(&ComparisonConfig{
		Runs:         1,
		Episodes:     1,
		Horizon:      5,
		RecordPath:   dir,
		ReportConfig: RepConfigStandard(),
		Out:          io.Discard,
	})
	c.AddExperiment(NewExperiment("GiveUp", &giveUp{stop: 2}, &lineEnv{}))
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	bs, err := os.ReadFile(filepath.Join(dir, "epReports", "GiveUp_ep0_ok.txt"))
	if err != nil {
		t.Fatalf("report not recorded: %v", err)
	}
	if !strings.Contains(string(bs), "no action at step 2") {
		t.Errorf("report %s", bs)
	}
	if r := c.Results[0][0]; r.Valid != 1 || r.Successes != 0 {
		t.Errorf("result %+v", r)
	}
}

func TestAgentStepError(t *testing.T) {
	env := &lineEnv{failStep: true}
	agent := NewAgent(&AgentConfig{Episodes: 1, Horizon: 5, Policy: &forward{}, Environment: env})
	eCtx := NewEpisodeContext(context.Background(), 0, "line", 0)
	agent.RunEpisode(eCtx)
	if eCtx.Err == nil || eCtx.Trace.Len() != 0 {
		t.Errorf("err %v, trace %d", eCtx.Err, eCtx.Trace.Len())
	}
}

func TestTraceJSON(t *testing.T) {
	tr := NewTrace()
	tr.Append(0, &Observation{Observation: []float64{1}}, []float64{0.5}, -1, &Observation{Observation: []float64{2}}, Info{IsSuccess: true})
	bs, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	back := NewTrace()
	if err := json.Unmarshal(bs, back); err != nil {
		t.Fatal(err)
	}
	if back.Len() != 1 || !back.Succeeded() {
		t.Errorf("decoded %s into %d transitions", bs, back.Len())
	}
}

func TestComparison(t *testing.T) {
	dir := t.TempDir()
	var compared []string
	c := NewComparison(&ComparisonConfig{
		Runs:         2,
		Episodes:     3,
		Horizon:      4,
		RecordPath:   dir,
		RecordTraces: true,
		Out:          io.Discard,
	})
	c.AddAnalysis("success", NewSuccessAnalyzer, func(run int, names []string, ds []DataSet) {
		compared = append(compared, names...)
		for _, d := range ds {
			if rates := d.([]float64); len(rates) != 3 || rates[2] != 1 {
				t.Errorf("run %d rates %v", run, rates)
			}
		}
	})
	c.AddAnalysis("return", NewReturnAnalyzer, SeriesPlotter(filepath.Join(dir, "return"), "return", "return", io.Discard))
	c.AddExperiment(NewExperiment("Forward", &forward{}, &lineEnv{}))
	c.AddExperiment(NewExperiment("Forward2", &forward{}, &lineEnv{}))

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(compared) != 4 || len(c.Results) != 2 {
		t.Errorf("compared %v, results %d", compared, len(c.Results))
	}
	r := c.Results[0][0]
	if r.Episodes != 3 || r.Valid != 3 || r.Successes != 3 {
		t.Errorf("result %+v", r)
	}
	for _, f := range []string{
		"comparison_config.json",
		filepath.Join("traces", "Forward_0.jsonl"),
		filepath.Join("return", "1_return.png"),
	} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
}

// lockedBuffer is written by the progress board goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestComparisonParallel(t *testing.T) {
	out := &lockedBuffer{}
	c := NewComparison(&ComparisonConfig{
		Runs:     1,
		Episodes: 2,
		Horizon:  4,
		Parallel: true,
		Out:      out,
	})
	c.AddAnalysis("success", NewSuccessAnalyzer, NoopComparator())
	c.AddExperiment(NewExperiment("A", &forward{}, &lineEnv{}))
	c.AddExperiment(NewExperiment("B", &forward{}, &lineEnv{}))
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, r := range c.Results[0] {
		if r.Successes != 2 {
			t.Errorf("result %+v", r)
		}
	}
	text := out.String()
	for _, want := range []string{"[done   ] Exp:A", "[done   ] Exp:B"} {
		if !strings.Contains(text, want) {
			t.Errorf("progress output is missing %q:\n%s", want, text)
		}
	}
}

func TestProgressLineFinish(t *testing.T) {
	l := &progressLine{}
	l.set("episode 1")
	if got := l.String(); got != "[running] episode 1" {
		t.Errorf("line %q", got)
	}
	l.finish()
	l.set("episode 2")
	if got := l.String(); got != "[done   ] episode 1" {
		t.Errorf("line %q", got)
	}
}

func TestExperimentTimeoutsAbort(t *testing.T) {
	env := &lineEnv{block: make(chan struct{})}
	c := NewComparison(&ComparisonConfig{
		Runs:                     1,
		Episodes:                 10,
		Horizon:                  4,
		Timeout:                  10 * time.Millisecond,
		ConsecutiveTimeoutsAbort: 2,
		Out:                      io.Discard,
	})
	c.AddExperiment(NewExperiment("Blocked", &forward{}, env))
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := c.Results[0][0]
	if !r.Aborted || r.Episodes != 2 || r.TimedOut != 2 {
		t.Errorf("result %+v", r)
	}
}

func TestVisitGraph(t *testing.T) {
	g := NewVisitGraph()
	if !g.Update("a", "+x", "b") || g.Update("a", "+x", "c") || !g.Update("b", "-x", "a") {
		t.Errorf("new state detection wrong")
	}
	visits := g.GetVisits()
	if visits["a"] != 2 || visits["b"] != 1 || visits["c"] != 0 || g.Visited() != 2 {
		t.Errorf("visits %v", visits)
	}
	if n := g.Nodes["a"]; !n.Next["+x"]["b"] || !n.Next["+x"]["c"] || !n.Prev["-x"]["b"] {
		t.Errorf("edges of a: %+v", n)
	}

	p := filepath.Join(t.TempDir(), "graph", "visits.json")
	if err := g.Record(p); err != nil {
		t.Fatal(err)
	}
	back := NewVisitGraph()
	bs, _ := os.ReadFile(p)
	if err := json.Unmarshal(bs, back); err != nil || back.Nodes["a"].Visits != 2 {
		t.Errorf("recorded graph %s: %v", bs, err)
	}
}

func TestCoverageAnalyzer(t *testing.T) {
	dir := t.TempDir()
	position := func(o *Observation) string { return fmt.Sprint(o.AchievedGoal[0]) }
	push := func(a []float64) string { return fmt.Sprint(a[0]) }
	c := NewComparison(&ComparisonConfig{
		Runs:     1,
		Episodes: 2,
		Horizon:  3,
		Out:      io.Discard,
	})
	var coverage []DataSet
	c.AddAnalysis("coverage", NewCoverageAnalyzer(position, push), func(run int, names []string, ds []DataSet) {
		coverage = ds
		CoveragePlotter(filepath.Join(dir, "coverage"), io.Discard)(run, names, ds)
	})
	c.AddExperiment(NewExperiment("Forward", &forward{}, &lineEnv{}))
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// both episodes walk 0 -> 1 -> 2 -> 3
	cov := coverage[0].(*CoverageData)
	if len(cov.Series) != 2 || cov.Series[0] != 3 || cov.Series[1] != 3 {
		t.Errorf("series %v", cov.Series)
	}
	if cov.Graph.Nodes["0"].Visits != 2 || !cov.Graph.Nodes["2"].Next["1"]["3"] {
		t.Errorf("graph %+v", cov.Graph.Nodes)
	}
	for _, f := range []string{"0_coverage.png", "0_Forward_visits.json"} {
		if _, err := os.Stat(filepath.Join(dir, "coverage", f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
}
