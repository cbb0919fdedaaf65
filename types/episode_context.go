package types

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/zeu5/robot-goal-env/util"
)

// EpisodeContext holds what an episode needs and what it produced
type EpisodeContext struct {
	Context context.Context
	Cancel  context.CancelFunc // cancel function to stop the episode

	Episode        int
	ExperimentName string

	Trace     *Trace
	Timesteps int
	Err       error
	TimedOut  bool

	RunDuration   time.Duration
	ToPrintReport bool
	reportPath    string

	Report EpisodeReport
}

// NewEpisodeContext derives the episode context from the parent, bounded by
// timeout when it is positive
func NewEpisodeContext(parent context.Context, episode int, experimentName string, timeout time.Duration) *EpisodeContext {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	return &EpisodeContext{
		Context:        ctx,
		Cancel:         cancel,
		Episode:        episode,
		ExperimentName: experimentName,
		Trace:          NewTrace(),
		Report:         *NewEpisodeReport(episode, experimentName),
	}
}

func (e *EpisodeContext) SetError(err error) {
	e.Err = err
}

func (e *EpisodeContext) SetTimedOut() {
	e.TimedOut = true
}

func (e *EpisodeContext) SetToPrintReport(b bool) {
	e.ToPrintReport = b
}

// SetReportPath configures where RecordReport writes
func (e *EpisodeContext) SetReportPath(p string) {
	e.reportPath = p
}

// RecordReport writes the episode report under the report path, if any
func (e *EpisodeContext) RecordReport() {
	if e.reportPath == "" {
		return
	}
	status := "ok"
	if e.TimedOut {
		status = "timeout"
	} else if e.Err != nil {
		status = "error"
	}
	content := []string{
		fmt.Sprintf("experiment: %s, episode: %d, status: %s", e.ExperimentName, e.Episode, status),
		e.Report.StringPerType(),
	}
	if e.Err != nil {
		content = append(content, "error: "+e.Err.Error())
	}
	if _, err := os.Stat(e.reportPath); err != nil {
		os.MkdirAll(e.reportPath, os.ModePerm)
	}
	util.WriteToFile(path.Join(e.reportPath, e.ExperimentName+"_ep"+strconv.Itoa(e.Episode)+"_"+status+".txt"), content...)
}

// EPISODE REPORT

// Report of an episode
type EpisodeReport struct {
	EpisodeNumber  int
	ExperimentName string
	episodeStep    int

	nextIndex int       // next available index for an entry
	startTime time.Time // start time to compute timestamp of an entry

	lock *sync.Mutex // mutex to control entries updates

	Timeline   []*EpisodeReportEntry // generic timeline containing all the entries ordered by index
	TimeValues map[string][]*EpisodeReportEntry
	Logs       map[string]string
}

func NewEpisodeReport(episodeNumber int, experimentName string) *EpisodeReport {
	return &EpisodeReport{
		EpisodeNumber:  episodeNumber,
		ExperimentName: experimentName,
		episodeStep:    0,

		nextIndex: 0,
		startTime: time.Now(),

		lock: &sync.Mutex{},

		Timeline:   make([]*EpisodeReportEntry, 0),
		TimeValues: make(map[string][]*EpisodeReportEntry),
		Logs:       make(map[string]string),
	}
}

// set the current episode step in the report
func (e *EpisodeReport) setEpisodeStep(step int) {
	e.episodeStep = step
}

// add a new entry of type time.Duration to the report
func (e *EpisodeReport) AddTimeEntry(value time.Duration, entryType string, caller string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	entry := EpisodeReportEntry{
		Index:     e.nextIndex,
		Timestamp: time.Since(e.startTime),

		EpisodeStep: e.episodeStep,
		EntryType:   entryType,
		Caller:      caller,
		Value:       value,
	}

	e.nextIndex += 1
	e.Timeline = append(e.Timeline, &entry)
	e.TimeValues[entryType] = append(e.TimeValues[entryType], &entry)
}

func (e *EpisodeReport) AddLog(value string, key string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.Logs[key] = value
}

// return a string representation of the report entries per type
func (e *EpisodeReport) StringPerType() string {
	e.lock.Lock()
	defer e.lock.Unlock()

	result := ""
	for entryType, entries := range e.TimeValues {
		result = fmt.Sprintf("%s\n%s [%d]:\n%s", result, entryType, len(entries), StringEntriesList(entries))
	}
	for key, value := range e.Logs {
		result = fmt.Sprintf("%s\n%s :\n%s", result, key, value)
	}
	return result
}

// ENTRY

// Entry of the Report
type EpisodeReportEntry struct {
	Index     int           // index of the entry, managed by the report
	Timestamp time.Duration // timestamp of the entry, managed by the report

	EpisodeStep int           // episode step
	EntryType   string        // entry type
	Caller      string        // the method adding the entry
	Value       time.Duration // entry value
}

// return a string representation of the entry
func (en *EpisodeReportEntry) String() string {
	return fmt.Sprintf("[ %6d | %5d | %3d ] %20s : %12s (%20s)", en.Index, en.Timestamp.Milliseconds(), en.EpisodeStep, en.EntryType, en.Value.String(), en.Caller)
}

// return a string representation of the list of entries
func StringEntriesList(list []*EpisodeReportEntry) string {
	result := ""
	for _, entry := range list {
		result = fmt.Sprintf("%s%s\n", result, entry.String())
	}
	return result
}
