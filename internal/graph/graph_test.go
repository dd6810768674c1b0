package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertTopological(t *testing.T, nodes []Node, order []string) {
	t.Helper()

	require.Len(t, order, len(nodes))

	pos := make(map[string]int, len(order))
	for i, id := range order {
		_, dup := pos[id]
		require.False(t, dup, "id %s emitted twice", id)
		pos[id] = i
	}

	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			assert.Less(t, pos[dep], pos[n.ID], "%s must come after %s", n.ID, dep)
		}
	}
}

func TestTopologicalOrder(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []Node
		expected []string
	}{
		{
			name:     "empty",
			nodes:    nil,
			expected: []string{},
		},
		{
			name: "chain",
			nodes: []Node{
				{ID: "A"},
				{ID: "B", Dependencies: []string{"A"}},
			},
			expected: []string{"A", "B"},
		},
		{
			name: "independent tasks keep registration order",
			nodes: []Node{
				{ID: "C"},
				{ID: "A"},
				{ID: "B"},
			},
			expected: []string{"C", "A", "B"},
		},
		{
			name: "diamond",
			nodes: []Node{
				{ID: "A"},
				{ID: "B", Dependencies: []string{"A"}},
				{ID: "C", Dependencies: []string{"A"}},
				{ID: "D", Dependencies: []string{"C", "B"}},
			},
			expected: []string{"A", "B", "C", "D"},
		},
		{
			name: "prerequisites visited in declared order",
			nodes: []Node{
				{ID: "D", Dependencies: []string{"C", "B"}},
				{ID: "B"},
				{ID: "C"},
			},
			expected: []string{"C", "B", "D"},
		},
		{
			name: "unknown prerequisite treated as satisfied",
			nodes: []Node{
				{ID: "B", Dependencies: []string{"gone"}},
			},
			expected: []string{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := TopologicalOrder(tt.nodes)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, order)
		})
	}
}

func TestTopologicalOrder_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		path  []string
	}{
		{
			name: "two tasks depending on each other",
			nodes: []Node{
				{ID: "A", Dependencies: []string{"B"}},
				{ID: "B", Dependencies: []string{"A"}},
			},
			path: []string{"A", "B", "A"},
		},
		{
			name: "self loop",
			nodes: []Node{
				{ID: "A", Dependencies: []string{"A"}},
			},
			path: []string{"A", "A"},
		},
		{
			name: "cycle behind an acyclic prefix",
			nodes: []Node{
				{ID: "root"},
				{ID: "X", Dependencies: []string{"root", "Z"}},
				{ID: "Y", Dependencies: []string{"X"}},
				{ID: "Z", Dependencies: []string{"Y"}},
			},
			path: []string{"X", "Z", "Y", "X"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := TopologicalOrder(tt.nodes)

			require.Error(t, err)
			assert.Nil(t, order)
			assert.True(t, errors.Is(err, ErrCycleDetected))

			var cycleErr *CycleError
			require.True(t, errors.As(err, &cycleErr))
			assert.Equal(t, tt.path, cycleErr.Path)
			assert.Contains(t, err.Error(), "cycle detected")
		})
	}
}

func TestTopologicalOrder_RandomAcyclic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for round := range 50 {
		count := 1 + rng.IntN(40)
		nodes := make([]Node, count)
		for i := range nodes {
			nodes[i].ID = fmt.Sprintf("t%d", i)
			for j := range i {
				if rng.IntN(4) == 0 {
					nodes[i].Dependencies = append(nodes[i].Dependencies, fmt.Sprintf("t%d", j))
				}
			}
		}
		// registration order must not matter for validity
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		order, err := TopologicalOrder(nodes)
		require.NoError(t, err, "round %d", round)
		assertTopological(t, nodes, order)
	}
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	nodes := []Node{
		{ID: "E", Dependencies: []string{"B", "D"}},
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "C"},
		{ID: "D", Dependencies: []string{"C"}},
	}

	first, err := TopologicalOrder(nodes)
	require.NoError(t, err)

	for range 10 {
		again, err := TopologicalOrder(nodes)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, first)
}

func TestTopologicalOrder_DeepChain(t *testing.T) {
	const depth = 100000

	nodes := make([]Node, depth)
	for i := range nodes {
		nodes[i].ID = fmt.Sprintf("n%d", i)
		if i > 0 {
			nodes[i].Dependencies = []string{nodes[i-1].ID}
		}
	}
	// visit the tail first so the traversal walks the full chain
	nodes[0], nodes[depth-1] = nodes[depth-1], nodes[0]

	order, err := TopologicalOrder(nodes)
	require.NoError(t, err)
	assertTopological(t, nodes, order)
}

func TestLevels(t *testing.T) {
	nodes := []Node{
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "C"},
		{ID: "D", Dependencies: []string{"B", "C"}},
	}

	order, err := TopologicalOrder(nodes)
	require.NoError(t, err)

	levels := Levels(nodes, order)

	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 0, "D": 2}, levels)
}
