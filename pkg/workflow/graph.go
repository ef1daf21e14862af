// Package workflow executes directed graphs of steps that can pause for a human answer and
// resume later from persisted state.
package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/formflow/pkg/models"
)

// Step transforms a workflow state. Steps mutate state only; routing is decided by the
// edges evaluated on the state they return.
type Step interface {
	Name() string
	Run(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error)
}

// StepFunc adapts a function into a Step.
type StepFunc func(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error)

type funcStep struct {
	name string
	fn   StepFunc
}

// NewStep returns a named Step backed by fn.
func NewStep(name string, fn StepFunc) Step {
	return &funcStep{name: name, fn: fn}
}

func (s *funcStep) Name() string {
	return s.name
}

func (s *funcStep) Run(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	return s.fn(ctx, state)
}

// Condition is a predicate over the state returned by a step.
type Condition func(state *models.WorkflowState) bool

// Always is satisfied by every state.
func Always(*models.WorkflowState) bool {
	return true
}

// EdgeKind tells the executor what to do when an edge is selected.
type EdgeKind int

const (
	EdgeNext EdgeKind = iota
	EdgePause
	EdgeTerminal
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeNext:
		return "next"
	case EdgePause:
		return "pause"
	case EdgeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// QuestionFunc builds the question shown to the user when a pause edge is selected.
type QuestionFunc func(state *models.WorkflowState) string

// Edge is one outgoing transition of a step.
type Edge struct {
	Kind      EdgeKind
	Condition Condition
	Target    string
	Question  QuestionFunc
}

// GoTo continues with target when cond holds.
func GoTo(cond Condition, target string) Edge {
	return Edge{Kind: EdgeNext, Condition: cond, Target: target}
}

// Pause suspends the run with the question built by question when cond holds.
func Pause(cond Condition, question QuestionFunc) Edge {
	return Edge{Kind: EdgePause, Condition: cond, Question: question}
}

// Terminal runs the completion step and ends the run when cond holds.
func Terminal(cond Condition) Edge {
	return Edge{Kind: EdgeTerminal, Condition: cond}
}

// Graph is a directed graph of steps. Edges of a step are evaluated in the order they
// were declared and the first satisfied condition wins.
type Graph struct {
	entry      string
	steps      map[string]Step
	order      []string
	edges      map[string][]Edge
	completion Step
}

// NewGraph returns an empty graph that starts at entry.
func NewGraph(entry string) *Graph {
	return &Graph{
		entry: entry,
		steps: make(map[string]Step),
		edges: make(map[string][]Edge),
	}
}

// AddStep registers a step and its outgoing edges in priority order.
func (g *Graph) AddStep(step Step, edges ...Edge) *Graph {
	name := step.Name()
	if _, exists := g.steps[name]; !exists {
		g.order = append(g.order, name)
	}

	g.steps[name] = step
	g.edges[name] = edges

	return g
}

// SetCompletion sets the step run when a terminal edge is selected.
func (g *Graph) SetCompletion(step Step) *Graph {
	g.completion = step

	return g
}

// Entry returns the name of the first step.
func (g *Graph) Entry() string {
	return g.entry
}

// Steps returns the step names in registration order.
func (g *Graph) Steps() []string {
	return append([]string(nil), g.order...)
}

// Validate checks that the graph can be executed.
func (g *Graph) Validate() error {
	if _, ok := g.steps[g.entry]; !ok {
		return fmt.Errorf("%w: entry step %q is not registered", ErrInvalidGraph, g.entry)
	}

	if g.completion == nil {
		return fmt.Errorf("%w: no completion step", ErrInvalidGraph)
	}

	for _, name := range g.order {
		edges := g.edges[name]
		if len(edges) == 0 {
			return fmt.Errorf("%w: step %q has no outgoing edges", ErrInvalidGraph, name)
		}

		for i, edge := range edges {
			if edge.Condition == nil {
				return fmt.Errorf("%w: edge %d of step %q has no condition", ErrInvalidGraph, i, name)
			}

			switch edge.Kind {
			case EdgeNext:
				if _, ok := g.steps[edge.Target]; !ok {
					return fmt.Errorf("%w: step %q routes to unknown step %q", ErrInvalidGraph, name, edge.Target)
				}
			case EdgePause:
				if edge.Question == nil {
					return fmt.Errorf("%w: pause edge %d of step %q has no question", ErrInvalidGraph, i, name)
				}
			case EdgeTerminal:
			default:
				return fmt.Errorf("%w: edge %d of step %q has unknown kind %s", ErrInvalidGraph, i, name, edge.Kind)
			}
		}
	}

	unreachable := g.unreachable()
	if len(unreachable) > 0 {
		return fmt.Errorf("%w: unreachable steps %v", ErrInvalidGraph, unreachable)
	}

	return nil
}

func (g *Graph) unreachable() []string {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range g.edges[current] {
			if edge.Kind == EdgeNext && !seen[edge.Target] {
				seen[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	var result []string

	for _, name := range g.order {
		if !seen[name] {
			result = append(result, name)
		}
	}

	return result
}

// route returns the first edge of step whose condition holds for state.
func (g *Graph) route(step string, state *models.WorkflowState) (Edge, bool) {
	for _, edge := range g.edges[step] {
		if edge.Condition(state) {
			return edge, true
		}
	}

	return Edge{}, false
}
