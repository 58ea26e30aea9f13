package plan

import (
	"sort"
	"strings"

	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/state"
)

// Graph is the resource dependency graph used for ordering. Edges point
// from a resource to the resources it depends on.
type Graph struct {
	nodes map[string]*graphNode
	added []string // insertion order, for deterministic topo ties
	order []string // creation order
	rev   []string // destruction order
}

type graphNode struct {
	addr     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildGraph constructs the dependency graph for a set of resolved
// instances, from explicit dependsOn plus implicit ptr:// references
// inside attribute values.
func BuildGraph(instances []*config.Instance) (*Graph, error) {
	g := newGraph()
	for _, inst := range instances {
		g.addNode(inst.Address.String())
	}

	for _, inst := range instances {
		addr := inst.Address.String()
		for _, dep := range inst.DependsOn {
			g.addEdge(addr, dep)
		}
		for _, ref := range ExtractRefs(inst.Attributes) {
			g.addEdge(addr, RefAddr(ref))
		}
	}

	return g, g.finish()
}

// BuildGraphFromRecords constructs a graph over state records, using the
// dependencies recorded at apply time. Used to order deletions.
func BuildGraphFromRecords(records map[string]*state.Record) (*Graph, error) {
	addrs := make([]string, 0, len(records))
	for addr := range records {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	g := newGraph()
	for _, addr := range addrs {
		g.addNode(addr)
	}
	for _, addr := range addrs {
		for _, dep := range records[addr].Dependencies {
			g.addEdge(addr, dep)
		}
	}

	return g, g.finish()
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[string]*graphNode)}
}

func (g *Graph) addNode(addr string) {
	if _, ok := g.nodes[addr]; ok {
		return
	}
	g.nodes[addr] = &graphNode{addr: addr}
	g.added = append(g.added, addr)
}

// addEdge records that from depends on to. Edges to undeclared addresses
// are dropped; an absent dependency constrains nothing.
func (g *Graph) addEdge(from, to string) {
	if from == to {
		return
	}
	node := g.nodes[from]
	if _, ok := g.nodes[to]; !ok {
		return
	}
	for _, existing := range node.edges {
		if existing == to {
			return
		}
	}
	node.edges = append(node.edges, to)
	g.nodes[to].revEdges = append(g.nodes[to].revEdges, from)
}

func (g *Graph) finish() error {
	order, err := g.topoSort()
	if err != nil {
		return err
	}
	g.order = order
	g.rev = make([]string, len(order))
	for i, addr := range order {
		g.rev[len(order)-1-i] = addr
	}
	return nil
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns addresses in reverse dependency order.
func (g *Graph) DestructionOrder() []string {
	return g.rev
}

// Dependencies returns the direct dependencies of an address.
func (g *Graph) Dependencies(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// topoSort runs Kahn's algorithm, breaking ties by insertion order so the
// same inputs always produce the same plan.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.edges)
	}

	var queue []string
	for _, addr := range g.added {
		if inDegree[addr] == 0 {
			queue = append(queue, addr)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, addr)

		for _, dependent := range g.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		var stuck []string
		for _, addr := range g.added {
			if inDegree[addr] > 0 {
				stuck = append(stuck, addr)
			}
		}
		return nil, &CycleError{Addresses: stuck}
	}
	return sorted, nil
}

// ExtractRefs returns every ptr:// reference found anywhere in a value.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "ptr://") {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, item := range val {
			refs = append(refs, ExtractRefs(item)...)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, ExtractRefs(item)...)
		}
	}
	return refs
}

// RefAddr converts a ptr:// reference to the address it names.
// ptr://compute.Server/web/id -> compute.Server.web
// ptr://compute.Server/web[2]/id -> compute.Server.web[2]
func RefAddr(ref string) string {
	path, ok := strings.CutPrefix(ref, "ptr://")
	if !ok {
		return ""
	}
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// RefAttr returns the attribute a ptr:// reference selects, or "".
func RefAttr(ref string) string {
	path, ok := strings.CutPrefix(ref, "ptr://")
	if !ok {
		return ""
	}
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
