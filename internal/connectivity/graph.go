package connectivity

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/tedpearson/cerebro/internal/dsp"
)

// EdgePercentile is the coherence percentile below which edges are dropped
// before computing graph measures.
const EdgePercentile = 75.0

// Measures are per-channel centralities of the thresholded coherence graph.
// Edge weights act as distances for betweenness and closeness.
type Measures struct {
	Degree      map[string]float64 `json:"degree"`
	Betweenness map[string]float64 `json:"betweenness_centrality"`
	Closeness   map[string]float64 `json:"closeness_centrality"`
}

// GraphMeasures builds an undirected graph from pair coherences, keeps the
// edges at or above the EdgePercentile of all coherences and computes
// weighted degree, normalized betweenness and Wasserman-Faust closeness.
func GraphMeasures(coherence PairCoherence) (*Measures, error) {
	if len(coherence) == 0 {
		return nil, fmt.Errorf("no coherence pairs to build a graph from")
	}
	ids := make(map[string]int64)
	var names []string
	node := func(name string) int64 {
		id, ok := ids[name]
		if !ok {
			id = int64(len(names))
			ids[name] = id
			names = append(names, name)
		}
		return id
	}

	pairs := make([]Pair, 0, len(coherence))
	values := make([]float64, 0, len(coherence))
	for p, v := range coherence {
		pairs = append(pairs, p)
		values = append(values, v)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	threshold := dsp.Percentile(values, EdgePercentile)

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, k := range pairs {
		if k[0] == k[1] {
			return nil, fmt.Errorf("channel %q paired with itself", k[0])
		}
		u, v := node(k[0]), node(k[1])
		if g.Node(u) == nil {
			g.AddNode(simple.Node(u))
		}
		if g.Node(v) == nil {
			g.AddNode(simple.Node(v))
		}
		if w := coherence[k]; w >= threshold {
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(u), simple.Node(v), w))
		}
	}

	m := &Measures{
		Degree:      make(map[string]float64, len(names)),
		Betweenness: make(map[string]float64, len(names)),
		Closeness:   make(map[string]float64, len(names)),
	}
	for id, name := range names {
		var deg float64
		to := g.From(int64(id))
		for to.Next() {
			w, _ := g.Weight(int64(id), to.Node().ID())
			deg += w
		}
		m.Degree[name] = deg
		m.Betweenness[name] = 0
	}

	shortest := path.DijkstraAllPaths(g)
	n := len(names)
	for u := 0; u < n; u++ {
		var total float64
		reachable := 0
		for v := 0; v < n; v++ {
			if u == v {
				continue
			}
			d := shortest.Weight(int64(u), int64(v))
			if math.IsInf(d, 1) {
				continue
			}
			total += d
			reachable++
		}
		if total > 0 && n > 1 {
			m.Closeness[names[u]] = float64(reachable) / total * float64(reachable) / float64(n-1)
		} else {
			m.Closeness[names[u]] = 0
		}
	}

	// each unordered pair contributes the share of its shortest paths that
	// pass through an intermediate node
	for s := 0; s < n; s++ {
		for t := s + 1; t < n; t++ {
			paths, d := shortest.AllBetween(int64(s), int64(t))
			if math.IsInf(d, 1) || len(paths) == 0 {
				continue
			}
			share := 1 / float64(len(paths))
			for _, p := range paths {
				for _, via := range p[1 : len(p)-1] {
					m.Betweenness[names[via.ID()]] += share
				}
			}
		}
	}
	if n > 2 {
		scale := 2 / float64((n-1)*(n-2))
		for k := range m.Betweenness {
			m.Betweenness[k] *= scale
		}
	}
	return m, nil
}
