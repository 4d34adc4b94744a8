package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidSelector is returned when a selector term cannot be parsed.
var ErrInvalidSelector = errors.New("invalid selector")

// unlimited marks a graph operator without a depth ("+orders").
const unlimited = -1

type (
	// StaticResolver resolves selectors against the project graph and named
	// selectors of a Config. Safe for concurrent use (immutable after construction).
	//
	// Supported terms, separated by spaces (union):
	//   - a named selector from the config
	//   - "orders", "model:orders"
	//   - "tag:finance", "config.meta.owner:dana"
	//   - graph operators: "+orders", "2+orders", "orders+", "orders+1", "@orders"
	StaticResolver struct {
		selectors map[string][]string
		nodes     map[string]Node
		children  map[string][]string
		logger    *slog.Logger
	}

	// graphTerm is one node selection with its graph operators.
	graphTerm struct {
		name string
		// parents and children are traversal depths: 0 none, unlimited for no limit.
		parents  int
		children int
		// at selects descendants and all ancestors of those descendants.
		at bool
	}
)

// NewStaticResolver builds a resolver from cfg. A nil cfg resolves nothing.
func NewStaticResolver(cfg *Config, logger *slog.Logger) *StaticResolver {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg == nil {
		cfg = emptyConfig()
	}

	children := make(map[string][]string)

	for name, node := range cfg.Nodes {
		for _, parent := range node.DependsOn {
			children[parent] = append(children[parent], name)
		}
	}

	for parent := range children {
		sort.Strings(children[parent])
	}

	return &StaticResolver{
		selectors: cfg.Selectors,
		nodes:     cfg.Nodes,
		children:  children,
		logger:    logger,
	}
}

// NodeCount returns the number of nodes in the graph.
func (r *StaticResolver) NodeCount() int {
	if r == nil {
		return 0
	}

	return len(r.nodes)
}

// Resolve returns the node names selected by selector, sorted and deduplicated.
// Terms naming unknown nodes select nothing.
func (r *StaticResolver) Resolve(_ context.Context, selector string) ([]string, error) {
	selected := make(map[string]struct{})

	for _, term := range strings.Fields(selector) {
		nodes, err := r.resolveTerm(term)
		if err != nil {
			return nil, err
		}

		for _, n := range nodes {
			selected[n] = struct{}{}
		}
	}

	out := make([]string, 0, len(selected))
	for n := range selected {
		out = append(out, n)
	}

	sort.Strings(out)

	r.logger.Debug("Resolved selector from static graph",
		slog.String("selector", selector),
		slog.Int("node_count", len(out)))

	return out, nil
}

func (r *StaticResolver) resolveTerm(term string) ([]string, error) {
	if nodes, ok := r.selectors[term]; ok {
		return nodes, nil
	}

	if value, ok := strings.CutPrefix(term, "tag:"); ok {
		return r.nodesWhere(func(n Node) bool { return slices.Contains(n.Tags, value) }), nil
	}

	if value, ok := strings.CutPrefix(term, "config.meta.owner:"); ok {
		return r.nodesWhere(func(n Node) bool { return n.Owner == value }), nil
	}

	gt, err := parseGraphTerm(strings.TrimPrefix(term, "model:"))
	if err != nil {
		return nil, err
	}

	if _, ok := r.nodes[gt.name]; !ok {
		r.logger.Warn("Selector names an unknown node", slog.String("node", gt.name))

		return nil, nil
	}

	return r.expand(gt), nil
}

func (r *StaticResolver) nodesWhere(match func(Node) bool) []string {
	var out []string

	for name, node := range r.nodes {
		if match(node) {
			out = append(out, name)
		}
	}

	return out
}

func (r *StaticResolver) expand(gt graphTerm) []string {
	selected := map[string]struct{}{gt.name: {}}

	if gt.at {
		descendants := append([]string{gt.name}, r.walk(gt.name, unlimited, r.childrenOf)...)

		for _, d := range descendants {
			selected[d] = struct{}{}

			for _, a := range r.walk(d, unlimited, r.parentsOf) {
				selected[a] = struct{}{}
			}
		}
	} else {
		if gt.parents != 0 {
			for _, a := range r.walk(gt.name, gt.parents, r.parentsOf) {
				selected[a] = struct{}{}
			}
		}

		if gt.children != 0 {
			for _, d := range r.walk(gt.name, gt.children, r.childrenOf) {
				selected[d] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(selected))
	for n := range selected {
		out = append(out, n)
	}

	return out
}

func (r *StaticResolver) parentsOf(name string) []string {
	return r.nodes[name].DependsOn
}

func (r *StaticResolver) childrenOf(name string) []string {
	return r.children[name]
}

// walk returns the nodes reachable from start within depth steps, breadth first.
func (r *StaticResolver) walk(start string, depth int, next func(string) []string) []string {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}

	var out []string

	for level := 0; len(frontier) > 0 && (depth == unlimited || level < depth); level++ {
		var upcoming []string

		for _, n := range frontier {
			for _, m := range next(n) {
				if _, seen := visited[m]; seen {
					continue
				}

				visited[m] = struct{}{}
				out = append(out, m)
				upcoming = append(upcoming, m)
			}
		}

		frontier = upcoming
	}

	return out
}

// parseGraphTerm parses "[N]+name[+N]" or "@name".
func parseGraphTerm(term string) (graphTerm, error) {
	if name, ok := strings.CutPrefix(term, "@"); ok {
		if name == "" || strings.ContainsAny(name, "+@") {
			return graphTerm{}, fmt.Errorf("%w: '%s'", ErrInvalidSelector, term)
		}

		return graphTerm{name: name, at: true}, nil
	}

	gt := graphTerm{name: term}

	if i := strings.Index(term, "+"); i >= 0 && !strings.ContainsFunc(term[:i], notDigit) {
		depth, err := depthOf(term[:i])
		if err != nil {
			return graphTerm{}, fmt.Errorf("%w: '%s'", ErrInvalidSelector, term)
		}

		gt.parents = depth
		gt.name = term[i+1:]
	}

	if i := strings.LastIndex(gt.name, "+"); i >= 0 && !strings.ContainsFunc(gt.name[i+1:], notDigit) {
		depth, err := depthOf(gt.name[i+1:])
		if err != nil {
			return graphTerm{}, fmt.Errorf("%w: '%s'", ErrInvalidSelector, term)
		}

		gt.children = depth
		gt.name = gt.name[:i]
	}

	if gt.name == "" || strings.ContainsAny(gt.name, "+@") {
		return graphTerm{}, fmt.Errorf("%w: '%s'", ErrInvalidSelector, term)
	}

	return gt, nil
}

func depthOf(digits string) (int, error) {
	if digits == "" {
		return unlimited, nil
	}

	return strconv.Atoi(digits)
}

func notDigit(r rune) bool {
	return !unicode.IsDigit(r)
}
