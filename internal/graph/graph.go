// Package graph computes a deterministic execution order over prerequisite edges.
//
// The graph is never stored: callers pass a snapshot of nodes in registration
// order and get back an order in which every node follows its prerequisites.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is wrapped by every CycleError.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError reports one cycle found during ordering. Path starts and ends
// with the same id and follows prerequisite edges.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleDetected.Error()
	}

	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// Node is a task id with its prerequisite ids in declared order.
type Node struct {
	ID           string
	Dependencies []string
}

const (
	unvisited = iota
	inProgress
	done
)

type frame struct {
	node int
	next int
}

// TopologicalOrder returns every node id after all of its prerequisites.
//
// Roots are visited in the order given and prerequisites in declared order, so
// the output is stable for a fixed registration sequence. Prerequisites that
// are not in nodes are treated as satisfied.
func TopologicalOrder(nodes []Node) ([]string, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	color := make([]uint8, len(nodes))
	order := make([]string, 0, len(nodes))
	stack := make([]frame, 0, len(nodes))

	for root := range nodes {
		if color[root] != unvisited {
			continue
		}

		color[root] = inProgress
		stack = append(stack, frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := nodes[top.node].Dependencies

			if top.next < len(deps) {
				dep, ok := index[deps[top.next]]
				top.next++
				if !ok {
					continue
				}

				switch color[dep] {
				case inProgress:
					return nil, &CycleError{Path: cyclePath(nodes, stack, dep)}
				case unvisited:
					color[dep] = inProgress
					stack = append(stack, frame{node: dep})
				}
				continue
			}

			color[top.node] = done
			order = append(order, nodes[top.node].ID)
			stack = stack[:len(stack)-1]
		}
	}

	return order, nil
}

// Levels assigns each id its depth: zero for tasks without prerequisites,
// otherwise one more than the deepest prerequisite. order must be topological.
func Levels(nodes []Node, order []string) map[string]int {
	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = n.Dependencies
	}

	levels := make(map[string]int, len(order))
	for _, id := range order {
		level := 0
		for _, dep := range deps[id] {
			if l, ok := levels[dep]; ok && l+1 > level {
				level = l + 1
			}
		}
		levels[id] = level
	}

	return levels
}

func cyclePath(nodes []Node, stack []frame, start int) []string {
	from := 0
	for i, f := range stack {
		if f.node == start {
			from = i
			break
		}
	}

	path := make([]string, 0, len(stack)-from+1)
	for _, f := range stack[from:] {
		path = append(path, nodes[f.node].ID)
	}

	return append(path, nodes[start].ID)
}
