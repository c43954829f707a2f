// Package graph builds the dependency graph around an artifact and measures
// how far a change to it reaches.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const DefaultMaxDepth = 3

const (
	StrengthStrong   = "strong"
	StrengthWeak     = "weak"
	StrengthOptional = "optional"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// ErrNodeNotFound is returned by a Source for an artifact with no catalog row.
var ErrNodeNotFound = errors.New("node not found")

type Node struct {
	ID           string              `json:"id"`
	ArtifactType domain.ArtifactType `json:"type"`
	ArtifactID   int64               `json:"artifact_id"`
	Name         string              `json:"name"`
	Version      int                 `json:"version"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Strength    string `json:"strength"`
	Description string `json:"description,omitempty"`
}

type Cycle struct {
	Nodes       []string `json:"nodes"`
	Severity    string   `json:"severity" enum:"warning,error"`
	Description string   `json:"description"`
}

type Impact struct {
	DirectImpacts   int        `json:"direct_impacts"`
	IndirectImpacts int        `json:"indirect_impacts"`
	CriticalPaths   [][]string `json:"critical_paths"`
	RiskLevel       string     `json:"risk_level" enum:"low,medium,high,critical"`
}

type Graph struct {
	Root   string  `json:"root"`
	Nodes  []Node  `json:"nodes"`
	Edges  []Edge  `json:"edges"`
	Cycles []Cycle `json:"cycles"`
	Impact Impact  `json:"impact_analysis"`
}

// Link is an outgoing dependency of an artifact.
type Link struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	Type         string
	Strength     string
	Description  string
}

// Source resolves artifacts and their outgoing links.
type Source interface {
	Node(ctx context.Context, t domain.ArtifactType, id int64) (Node, error)
	Links(ctx context.Context, t domain.ArtifactType, id int64) ([]Link, error)
}

func NodeID(t domain.ArtifactType, id int64) string {
	return fmt.Sprintf("%s-%d", t, id)
}

// Build walks outgoing links from the root up to maxDepth hops. Nodes at
// maxDepth are included but not expanded. Links to artifacts the source
// cannot resolve keep their edge but add no node.
func Build(ctx context.Context, src Source, t domain.ArtifactType, id int64, maxDepth int) (Graph, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	b := builder{src: src, maxDepth: maxDepth, visited: map[string]bool{}}
	root, err := src.Node(ctx, t, id)
	if err != nil {
		return Graph{}, err
	}
	if err := b.visit(ctx, root, 0); err != nil {
		return Graph{}, err
	}
	g := Graph{
		Root:  root.ID,
		Nodes: b.nodes,
		Edges: b.edges,
	}
	g.Cycles = DetectCycles(g.Nodes, g.Edges)
	g.Impact = AnalyzeImpact(g.Root, g.Edges)
	return g, nil
}

type builder struct {
	src      Source
	maxDepth int
	visited  map[string]bool
	nodes    []Node
	edges    []Edge
}

func (b *builder) visit(ctx context.Context, n Node, depth int) error {
	if b.visited[n.ID] {
		return nil
	}
	b.visited[n.ID] = true
	b.nodes = append(b.nodes, n)
	if depth >= b.maxDepth {
		return nil
	}
	links, err := b.src.Links(ctx, n.ArtifactType, n.ArtifactID)
	if err != nil {
		return fmt.Errorf("links of %s: %w", n.ID, err)
	}
	for _, l := range links {
		to := NodeID(l.ArtifactType, l.ArtifactID)
		b.edges = append(b.edges, Edge{From: n.ID, To: to, Type: l.Type, Strength: l.Strength, Description: l.Description})
		if b.visited[to] {
			continue
		}
		next, err := b.src.Node(ctx, l.ArtifactType, l.ArtifactID)
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := b.visit(ctx, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func adjacency(edges []Edge) map[string][]string {
	adj := map[string][]string{}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// DetectCycles runs a depth-first search with a recursion stack and records
// every back edge as a closed path.
func DetectCycles(nodes []Node, edges []Edge) []Cycle {
	adj := adjacency(edges)
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string
	var cycles []Cycle

	var dfs func(string)
	dfs = func(n string) {
		visited[n] = true
		onStack[n] = true
		path = append(path, n)
		for _, next := range adj[n] {
			switch {
			case !visited[next]:
				dfs(next)
			case onStack[next]:
				start := indexOf(path, next)
				cycle := append(append([]string{}, path[start:]...), next)
				severity := "warning"
				if len(cycle) > 3 {
					severity = "error"
				}
				cycles = append(cycles, Cycle{
					Nodes:       cycle,
					Severity:    severity,
					Description: "Circular dependency: " + strings.Join(cycle, " → "),
				})
			}
		}
		path = path[:len(path)-1]
		onStack[n] = false
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			dfs(n.ID)
		}
	}
	return cycles
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

type dependent struct {
	node     string
	strength string
}

// AnalyzeImpact walks the reverse edges from root breadth first. Nodes one
// hop away are direct impacts, the rest indirect. Every path made only of
// strong edges is a critical path.
func AnalyzeImpact(root string, edges []Edge) Impact {
	reverse := map[string][]dependent{}
	for _, e := range edges {
		reverse[e.To] = append(reverse[e.To], dependent{node: e.From, strength: e.Strength})
	}

	type item struct {
		node   string
		depth  int
		path   []string
		strong bool
	}
	queue := []item{{node: root, path: []string{root}, strong: true}}
	visited := map[string]bool{}
	out := Impact{CriticalPaths: [][]string{}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		switch {
		case cur.depth == 1:
			out.DirectImpacts++
		case cur.depth > 1:
			out.IndirectImpacts++
		}
		for _, d := range reverse[cur.node] {
			if visited[d.node] {
				continue
			}
			next := item{
				node:   d.node,
				depth:  cur.depth + 1,
				path:   append(append([]string{}, cur.path...), d.node),
				strong: cur.strong && d.strength == StrengthStrong,
			}
			if next.strong {
				out.CriticalPaths = append(out.CriticalPaths, next.path)
			}
			queue = append(queue, next)
		}
	}
	out.RiskLevel = RiskLevel(out.DirectImpacts+out.IndirectImpacts, len(out.CriticalPaths))
	return out
}

func RiskLevel(total, criticalPaths int) string {
	switch {
	case total > 20 || criticalPaths > 10:
		return RiskCritical
	case total > 10 || criticalPaths > 5:
		return RiskHigh
	case total > 5 || criticalPaths > 2:
		return RiskMedium
	}
	return RiskLow
}
