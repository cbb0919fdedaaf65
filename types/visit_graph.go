package types

import (
	"encoding/json"
	"os"
	"path"
)

// StateKey discretizes an observation into a graph node
type StateKey func(*Observation) string

// ActionKey names the edge an action takes between two nodes
type ActionKey func([]float64) string

// VisitGraph counts visits of discretized states and records which actions
// connected them.
type VisitGraph struct {
	Nodes map[string]*Node `json:"nodes"`
}

func NewVisitGraph() *VisitGraph {
	return &VisitGraph{
		Nodes: make(map[string]*Node),
	}
}

// Update adds the transition from -> to via action and returns true when
// from was never visited before
func (v *VisitGraph) Update(from, action, to string) bool {
	if _, ok := v.Nodes[from]; !ok {
		v.Nodes[from] = NewNode(from)
	}
	if _, ok := v.Nodes[to]; !ok {
		v.Nodes[to] = NewNode(to)
	}
	node := v.Nodes[from]
	first := node.Visits == 0
	node.Visits += 1
	node.AddNext(action, to)
	v.Nodes[to].AddPrev(action, from)
	return first
}

// AddTrace walks every transition of the trace
func (v *VisitGraph) AddTrace(trace *Trace, state StateKey, action ActionKey) {
	for i := 0; i < trace.Len(); i++ {
		tr, _ := trace.Get(i)
		v.Update(state(tr.Obs), action(tr.Action), state(tr.NextObs))
	}
}

// Visited is the number of distinct states the walk started a step from
func (v *VisitGraph) Visited() int {
	count := 0
	for _, n := range v.Nodes {
		if n.Visits > 0 {
			count++
		}
	}
	return count
}

func (v *VisitGraph) GetVisits() map[string]int {
	results := make(map[string]int)
	for k, n := range v.Nodes {
		results[k] = n.Visits
	}
	return results
}

func (v *VisitGraph) Record(filePath string) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path.Dir(filePath), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(filePath, bs, 0644)
}

type Node struct {
	Key    string `json:"key"`
	Visits int    `json:"visits"`
	// Next, Prev: each action can lead to many states
	Next map[string]map[string]bool `json:"next"`
	Prev map[string]map[string]bool `json:"prev"`
}

func NewNode(key string) *Node {
	return &Node{
		Key:    key,
		Visits: 0,
		Next:   make(map[string]map[string]bool),
		Prev:   make(map[string]map[string]bool),
	}
}

func (n *Node) AddPrev(a, prev string) {
	if _, ok := n.Prev[a]; !ok {
		n.Prev[a] = make(map[string]bool)
	}
	n.Prev[a][prev] = true
}

func (n *Node) AddNext(a, next string) {
	if _, ok := n.Next[a]; !ok {
		n.Next[a] = make(map[string]bool)
	}
	n.Next[a][next] = true
}
