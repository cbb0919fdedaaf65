package explorer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zeu5/robot-goal-env/policies"
	"github.com/zeu5/robot-goal-env/types"
)

// Explorer walks through a recorded q table and the traces of the same
// experiment. States are the goal offset cells the policy learnt on.
type Explorer struct {
	PolicyFile string
	TracesFile string
	Cell       float64

	QTable *policies.QTable
	Traces []*types.Trace
}

// Create an explorer of q tables and trace
func NewExplorer(policyFile string, tracesFile string, cell float64) (*Explorer, error) {
	if cell <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %v", cell)
	}
	e := &Explorer{
		PolicyFile: policyFile,
		TracesFile: tracesFile,
		Cell:       cell,
		QTable:     policies.NewQTable(),
		Traces:     make([]*types.Trace, 0),
	}

	err := e.QTable.Read(policyFile)
	if err != nil {
		return nil, err
	}
	e.Traces, err = readTraces(e.TracesFile)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func readTraces(path string) ([]*types.Trace, error) {
	traces := make([]*types.Trace, 0)
	file, err := os.Open(path)
	if err != nil {
		return traces, fmt.Errorf("error reading file: %w", err)
	}
	defer file.Close()

	if !strings.HasSuffix(path, ".jsonl") {
		t := types.NewTrace()
		data, err := io.ReadAll(file)
		if err != nil {
			return traces, fmt.Errorf("error reading file: %w", err)
		}
		if err := json.Unmarshal(data, t); err != nil {
			return traces, fmt.Errorf("error parsing file: %w", err)
		}
		return append(traces, t), nil
	}

	scanner := bufio.NewScanner(file)
	maxTraceSize := 5 * 1024 * 1024
	scanner.Buffer(make([]byte, maxTraceSize), maxTraceSize)
	for scanner.Scan() {
		bs := scanner.Bytes()
		if len(bs) == 0 {
			continue
		}
		t := types.NewTrace()
		if err := json.Unmarshal(bs, t); err != nil {
			return traces, fmt.Errorf("error reading trace %d: %w", len(traces)+1, err)
		}
		traces = append(traces, t)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return traces, errors.New("error trace too big")
		}
		return traces, fmt.Errorf("failed to read traces: %w", err)
	}
	return traces, nil
}

// Example invocation - robotenv explore results/policies/BonusMax.json results/traces/BonusMax_0.jsonl
func ExploreCommand() *cobra.Command {
	var cell float64
	cmd := &cobra.Command{
		Use:  "explore [policy_output] [trace_output]",
		Long: "Explore the choices of a q-table and the traces",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := NewExplorer(args[0], args[1], cell)
			if err != nil {
				return err
			}

			exp.Interact(cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().Float64Var(&cell, "cell", 0.1, "Cell size the policy discretized goal offsets with")
	return cmd
}
