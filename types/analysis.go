package types

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SuccessAnalyzer tracks the running success rate over episodes
type SuccessAnalyzer struct {
	successes int
	episodes  int
	rates     []float64
}

var _ Analyzer = &SuccessAnalyzer{}

func NewSuccessAnalyzer() Analyzer {
	return &SuccessAnalyzer{rates: make([]float64, 0)}
}

func (s *SuccessAnalyzer) Analyze(_ int, _ int, _ string, trace *Trace) {
	s.episodes += 1
	if trace.Succeeded() {
		s.successes += 1
	}
	s.rates = append(s.rates, float64(s.successes)/float64(s.episodes))
}

func (s *SuccessAnalyzer) DataSet() DataSet {
	out := make([]float64, len(s.rates))
	copy(out, s.rates)
	return out
}

func (s *SuccessAnalyzer) Reset() {
	s.successes = 0
	s.episodes = 0
	s.rates = make([]float64, 0)
}

// ReturnAnalyzer records the undiscounted return of every episode
type ReturnAnalyzer struct {
	returns []float64
}

var _ Analyzer = &ReturnAnalyzer{}

func NewReturnAnalyzer() Analyzer {
	return &ReturnAnalyzer{returns: make([]float64, 0)}
}

func (r *ReturnAnalyzer) Analyze(_ int, _ int, _ string, trace *Trace) {
	r.returns = append(r.returns, trace.Return())
}

func (r *ReturnAnalyzer) DataSet() DataSet {
	out := make([]float64, len(r.returns))
	copy(out, r.returns)
	return out
}

func (r *ReturnAnalyzer) Reset() {
	r.returns = make([]float64, 0)
}

// SeriesPlotter plots one line per experiment of a []float64 dataset and
// dumps the raw series as json next to the plot
func SeriesPlotter(plotPath, name, yLabel string, out io.Writer) Comparator {
	if _, err := os.Stat(plotPath); err != nil {
		os.MkdirAll(plotPath, os.ModePerm)
	}
	return func(run int, names []string, ds []DataSet) {
		p := plot.New()
		p.Title.Text = "Comparison"
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = yLabel

		data := make(map[string][]float64)
		for i := 0; i < len(names); i++ {
			series := ds[i].([]float64)
			data[names[i]] = series
			if len(series) == 0 {
				continue
			}
			points := make(plotter.XYs, len(series))
			for j, v := range series {
				points[j] = plotter.XY{
					X: float64(j),
					Y: v,
				}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				continue
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)
			if out != nil {
				fmt.Fprintf(out, "%s: mean %s %.3f, last %.3f\n", names[i], yLabel, stat.Mean(series, nil), series[len(series)-1])
			}
		}
		p.Save(8*vg.Inch, 8*vg.Inch, path.Join(plotPath, strconv.Itoa(run)+"_"+name+".png"))

		bs, err := json.Marshal(data)
		if err == nil {
			os.WriteFile(path.Join(plotPath, strconv.Itoa(run)+"_"+name+".json"), bs, 0644)
		}
	}
}

// CoverageData is the dataset of a CoverageAnalyzer
type CoverageData struct {
	// distinct states visited after each episode
	Series []float64
	Graph  *VisitGraph
}

// CoverageAnalyzer builds a visit graph over discretized states across the
// episodes of an experiment
type CoverageAnalyzer struct {
	state  StateKey
	action ActionKey
	graph  *VisitGraph
	series []float64
}

// NewCoverageAnalyzer returns a ctor for AddAnalysis
func NewCoverageAnalyzer(state StateKey, action ActionKey) func() Analyzer {
	return func() Analyzer {
		return &CoverageAnalyzer{
			state:  state,
			action: action,
			graph:  NewVisitGraph(),
			series: make([]float64, 0),
		}
	}
}

func (c *CoverageAnalyzer) Analyze(_ int, _ int, _ string, trace *Trace) {
	c.graph.AddTrace(trace, c.state, c.action)
	c.series = append(c.series, float64(c.graph.Visited()))
}

func (c *CoverageAnalyzer) DataSet() DataSet {
	return &CoverageData{
		Series: append([]float64(nil), c.series...),
		Graph:  c.graph,
	}
}

func (c *CoverageAnalyzer) Reset() {
	c.graph = NewVisitGraph()
	c.series = make([]float64, 0)
}

// CoveragePlotter plots the coverage series like SeriesPlotter and records
// the visit graph of every experiment as <run>_<experiment>_visits.json
func CoveragePlotter(plotPath string, out io.Writer) Comparator {
	series := SeriesPlotter(plotPath, "coverage", "states visited", out)
	return func(run int, names []string, ds []DataSet) {
		plain := make([]DataSet, len(ds))
		for i, d := range ds {
			cov := d.(*CoverageData)
			plain[i] = cov.Series
			if err := cov.Graph.Record(path.Join(plotPath, strconv.Itoa(run)+"_"+names[i]+"_visits.json")); err != nil && out != nil {
				fmt.Fprintf(out, "%s: recording visit graph: %v\n", names[i], err)
			}
		}
		series(run, names, plain)
	}
}
