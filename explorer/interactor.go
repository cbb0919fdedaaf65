package explorer

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/zeu5/robot-goal-env/policies"
	"github.com/zeu5/robot-goal-env/types"
)

// Runs the main interactive loop until quit or the end of the input
func (e *Explorer) Interact(in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "%s", e.header())
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s", e.prompt())

		optionS, err := readLine(reader)
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(out, "Invalid input! Try again")
			continue
		}
		option, err := strconv.Atoi(optionS)
		if err != nil {
			fmt.Fprintln(out, "Invalid input! Try again")
			continue
		}
		fmt.Fprintln(out, "------------------------------------")
		switch option {
		case 1:
			fmt.Fprintf(out, "%s", e.getInitialStates())
		case 2:
			fmt.Fprintf(out, "Enter the state key: ")
			stateK, err := readLine(reader)
			if err != nil {
				return
			}
			fmt.Fprintf(out, "%s", e.getQValues(stateK))
		case 3:
			fmt.Fprintf(out, "%s", e.getSummary())
		case 4:
			fmt.Fprintf(out, "Enter trace number (1-%d): ", len(e.Traces))
			traceNoS, err := readLine(reader)
			if err != nil {
				return
			}
			traceNo, err := strconv.Atoi(traceNoS)
			if err != nil {
				fmt.Fprintln(out, "Invalid input! Not a number. Try again")
				continue
			}
			if traceNo < 1 || traceNo > len(e.Traces) {
				fmt.Fprintf(out, "Invalid input! Should be between (1-%d). Try again\n", len(e.Traces))
				continue
			}
			if !e.interactTrace(traceNo-1, reader, out) {
				return
			}
		case 5:
			fmt.Fprintln(out, "Quitting! Thank you")
			return
		default:
			fmt.Fprintln(out, "Wrong choice! Try again!")
		}
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	s, err := reader.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	return strings.TrimSpace(s), err
}

func (e *Explorer) stateKey(obs *types.Observation) string {
	return policies.CellKey(obs, e.Cell)
}

func (e *Explorer) getQValues(state string) string {
	values, ok := e.QTable.GetAll(state)
	if !ok {
		return "No such state in the q table\n"
	}
	if len(values) == 0 {
		return "No values in the q table for the corresponding state\n"
	}
	actions := make([]string, 0, len(values))
	for k := range values {
		actions = append(actions, k)
	}
	sort.Strings(actions)
	out := "Q values are:\n"
	for _, k := range actions {
		out += fmt.Sprintf("%s: %f\n", k, values[k])
	}
	return out
}

func (e *Explorer) getInitialStates() string {
	initalStates := make(map[string]int)
	for _, t := range e.Traces {
		first, ok := t.Get(0)
		if !ok {
			continue
		}
		initalStates[e.stateKey(first.Obs)] += 1
	}
	keys := make([]string, 0, len(initalStates))
	for k := range initalStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "Initial States are:\n"
	for _, k := range keys {
		out += fmt.Sprintf("%s: %d\n", k, initalStates[k])
	}
	return out
}

func (e *Explorer) getSummary() string {
	out := ""
	successes := 0
	for i, t := range e.Traces {
		if t.Succeeded() {
			successes += 1
		}
		out += fmt.Sprintf("Trace %d: steps %d, return %.3f, success %v\n", i+1, t.Len(), t.Return(), t.Succeeded())
	}
	return out + fmt.Sprintf("%d/%d traces reached the goal\n", successes, len(e.Traces))
}

func (e *Explorer) header() string {
	return `
Welcome to the q table explorer!
	`
}

func (e *Explorer) prompt() string {
	return `
------------------------------------
Select one of the following options:
1. Show initial states
2. Show QValues
3. Summarize traces
4. Explore a trace
5. Quit
Enter your choice: `
}

func (e *Explorer) tracePrompt() string {
	return `
---------------------------------------------
Step(s) QValues(d) Prev(p) Last(l) Quit(q): `
}

// interactTrace steps through one trace, false when the input ended
func (e *Explorer) interactTrace(traceNo int, reader *bufio.Reader, out io.Writer) bool {
	stepCount := 0
	trace := e.Traces[traceNo]
	if trace.Len() == 0 {
		fmt.Fprintln(out, "Empty trace!")
		return true
	}
	fmt.Fprintln(out, "---------------------------------------------")
	for {
		tr, _ := trace.Get(stepCount)
		fmt.Fprintf(out, "For step %d\nState: %s\nAchieved: %v\nDesired: %v\nAction: %v\nReward: %v\nSuccess: %v\n",
			stepCount+1, e.stateKey(tr.Obs), tr.Obs.AchievedGoal, tr.Obs.DesiredGoal, tr.Action, tr.Reward, tr.Info.IsSuccess)
		fmt.Fprintf(out, "%s", e.tracePrompt())
		option, err := readLine(reader)
		if err != nil {
			return false
		}
		fmt.Fprintln(out, "---------------------------------------------")
		switch option {
		case "s":
			if stepCount == trace.Len()-1 {
				fmt.Fprintln(out, "No more steps!")
				continue
			}
			stepCount += 1
		case "d":
			fmt.Fprintf(out, "%s", e.getQValues(e.stateKey(tr.Obs)))
		case "p":
			if stepCount == 0 {
				fmt.Fprintln(out, "No more steps!")
				continue
			}
			stepCount -= 1
		case "l":
			stepCount = trace.Len() - 1
		case "q":
			return true
		default:
			fmt.Fprintln(out, "Invalid option! Try again.")
		}
	}
}
