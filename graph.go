/*
 * Filename: /Users/bao/code/scaffolder/graph.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Thursday, March 5th 2020, 10:12:41 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// nodeBatchSize is the number of nodes a worker handles between cancellation checks
const nodeBatchSize = 256

// ScaffoldPart is the placement of a contig inside a node, in node coordinates
type ScaffoldPart struct {
	Contig     int
	Strand     int8
	Start, End int64
}

// Oriented returns the contig with its strand in the node
func (r ScaffoldPart) Oriented() Oriented {
	return Oriented{r.Contig, r.Strand}
}

// GraphEdge is one side of an adjacency. Direction +1 leaves the 3' end of the node,
// -1 the 5' end. Strand is the orientation of the neighbour relative to the node.
// Length is the estimated gap, negative for overlaps.
type GraphEdge struct {
	Direction int8
	End       int
	Strand    int8
	Length    int64
	NumLink   int64
	Breakdown []int64
}

// mirrorOf is the same edge as stored at its End node
func (r GraphEdge) mirrorOf(u int) GraphEdge {
	return GraphEdge{
		Direction: -r.Direction * r.Strand,
		End:       u,
		Strand:    r.Strand,
		Length:    r.Length,
		NumLink:   r.NumLink,
		Breakdown: r.Breakdown,
	}
}

// String prints the edge as seen from its node
func (r GraphEdge) String() string {
	return fmt.Sprintf("%c%d%c gap=%d links=%d", strandChar(r.Direction), r.End,
		strandChar(r.Strand), r.Length, r.NumLink)
}

// edgeLess orders edges by (Direction, End, Strand)
func edgeLess(a, b *GraphEdge) bool {
	if a.Direction != b.Direction {
		return a.Direction < b.Direction
	}
	if a.End != b.End {
		return a.End < b.End
	}
	return a.Strand < b.Strand
}

// sameKey tells if two edges share (Direction, End, Strand)
func sameKey(a, b *GraphEdge) bool {
	return a.Direction == b.Direction && a.End == b.End && a.Strand == b.Strand
}

// GraphNode is a scaffold under construction
type GraphNode struct {
	IsHomo bool
	State  uint8
	Length int64
	Contig []ScaffoldPart
	Edge   []GraphEdge
}

// sortEdges restores the edge order
func (r *GraphNode) sortEdges() {
	sort.Slice(r.Edge, func(i, j int) bool {
		return edgeLess(&r.Edge[i], &r.Edge[j])
	})
}

// sortParts restores the part order and the node length
func (r *GraphNode) sortParts() {
	sort.SliceStable(r.Contig, func(i, j int) bool {
		if r.Contig[i].Start != r.Contig[j].Start {
			return r.Contig[i].Start < r.Contig[j].Start
		}
		return r.Contig[i].End < r.Contig[j].End
	})
	r.Length = 0
	for _, part := range r.Contig {
		r.Length = max64(r.Length, part.End)
	}
}

// findEdge returns the position of the edge with the same key, -1 if absent
func (r *GraphNode) findEdge(key *GraphEdge) int {
	i := sort.Search(len(r.Edge), func(i int) bool {
		return !edgeLess(&r.Edge[i], key)
	})
	if i < len(r.Edge) && sameKey(&r.Edge[i], key) {
		return i
	}
	return -1
}

// isActive tells if the node still takes part in the graph
func (r *GraphNode) isActive() bool {
	return r.State&(StateIncluded|StateDeleted) == 0
}

// ContigPosition is where a contig currently sits, Node is -1 when the contig is
// not part of any node
type ContigPosition struct {
	Node   int
	Strand int8
	Offset int64
}

// Bubble is an arm removed from the graph, written out separately
type Bubble struct {
	Name string
	Seq  []byte
}

// Stats counts what happened to the data, anomalies are only reported here
type Stats struct {
	Pairs            int64
	UnplacedPairs    int64
	SameNodePairs    int64
	OutOfRangeLinks  int64
	Links            int64
	Edges            int64
	RepeatNodes      int64
	RepeatEdges      int64
	ErroneousEdges   int64
	HeteroEdges      int64
	HeteroOverlaps   int64
	Bubbles          int64
	ConflictingEdges int64
	Merges           int64
	LowCoverageCuts  int64
	ErroneousPairs   int64
}

// Graph is the scaffold graph of one round. One node per contig initially, nodes
// are merged by MakeScaffold and carried over to the next round.
type Graph struct {
	Nodes []GraphNode
	Stats Stats

	contigs         *ContigSet
	libraries       []*Library
	active          int
	overlaps        *OverlapIndex
	position        []ContigPosition
	numBubble       []int32
	bubbles         []Bubble
	averageCoverage float64

	minLink         int64
	maxOverlap      int64
	minTolerence    int64
	tolerenceFactor int64
	seedLength      int64
	bubbleThreshold float64
	numThread       int
	tmpDir          string
}

// NewGraph makes a graph with one node per contig. The libraries are sorted by
// ascending insert size.
func NewGraph(contigs *ContigSet, libraries []*Library, overlaps *OverlapIndex, c *Config) *Graph {
	sortLibraries(libraries)
	r := &Graph{
		contigs:         contigs,
		libraries:       libraries,
		overlaps:        overlaps,
		position:        make([]ContigPosition, contigs.Len()),
		numBubble:       make([]int32, contigs.Len()),
		averageCoverage: c.AverageCoverage,
		minLink:         c.MinLink,
		maxOverlap:      c.MaxOverlap,
		minTolerence:    c.Tolerence,
		tolerenceFactor: c.MinTolerenceFactor,
		seedLength:      c.SeedLength,
		bubbleThreshold: c.BubbleThreshold,
		numThread:       maxInt(c.NumThread, 1),
		tmpDir:          c.TmpDir,
	}
	if overlaps == nil {
		r.overlaps = NewOverlapIndex()
	}
	if r.averageCoverage <= 0 {
		r.averageCoverage = contigs.AverageCoverage()
	}
	r.Nodes = make([]GraphNode, contigs.Len())
	for i := range r.Nodes {
		length := contigs.Length(i)
		r.Nodes[i] = GraphNode{
			Length: length,
			Contig: []ScaffoldPart{{i, 1, 0, length}},
		}
	}
	r.updatePositions()
	return r
}

// Library returns the library of the current round
func (r *Graph) Library() *Library {
	return r.libraries[r.active]
}

// tolerence is the admissible gap deviation with the current library
func (r *Graph) tolerence() int64 {
	if len(r.libraries) == 0 {
		return max64(r.minTolerence, r.tolerenceFactor*r.seedLength)
	}
	return r.libTolerence(r.active)
}

// InitScaffolding starts round `active`: the surviving nodes of the previous round
// are renumbered and stripped of their edges and states
func (r *Graph) InitScaffolding(active int) {
	r.active = active
	var nodes []GraphNode
	for i := range r.Nodes {
		node := &r.Nodes[i]
		if !node.isActive() {
			continue
		}
		nodes = append(nodes, GraphNode{
			Length: node.Length,
			Contig: node.Contig,
		})
	}
	r.Nodes = nodes
	r.updatePositions()
	log.Noticef("Round %d starts with %d nodes using library %s",
		active+1, len(r.Nodes), r.Library().Name)
}

// updatePositions records for each contig which node holds it
func (r *Graph) updatePositions() {
	for i := range r.position {
		r.position[i] = ContigPosition{Node: -1}
	}
	for i := range r.Nodes {
		if r.Nodes[i].State&StateDeleted != 0 {
			continue
		}
		for _, part := range r.Nodes[i].Contig {
			r.position[part.Contig] = ContigPosition{i, part.Strand, part.Start}
		}
	}
}

// aggregatedEdge is the outcome of the aggregation of the links between two nodes
type aggregatedEdge struct {
	Node1, Node2     int
	Strand1, Strand2 int8
	NumLink          int64
	Gap              int64
	Breakdown        []int64
}

// MakeGraph attaches the aggregated edges to the nodes, with their mirrors
func (r *Graph) MakeGraph(edges []aggregatedEdge) {
	for i := range r.Nodes {
		r.Nodes[i].Edge = r.Nodes[i].Edge[:0]
	}
	nEdges := 0
	for _, e := range edges {
		if e.NumLink < r.minLink || e.Node1 == e.Node2 {
			continue
		}
		forward := GraphEdge{
			Direction: e.Strand1,
			End:       e.Node2,
			Strand:    e.Strand1 * e.Strand2,
			Length:    e.Gap,
			NumLink:   e.NumLink,
			Breakdown: e.Breakdown,
		}
		r.Nodes[e.Node1].Edge = append(r.Nodes[e.Node1].Edge, forward)
		r.Nodes[e.Node2].Edge = append(r.Nodes[e.Node2].Edge, forward.mirrorOf(e.Node1))
		nEdges++
	}
	for i := range r.Nodes {
		r.Nodes[i].sortEdges()
	}
	r.Stats.Edges = int64(nEdges)
	log.Noticef("Graph contains %d nodes and %d edges", len(r.Nodes), nEdges)
}

// addEdge inserts the edge at u and its mirror, replacing any edge with the same key
func (r *Graph) addEdge(u int, e GraphEdge) {
	assertf(u != e.End, "self edge at node %d", u)
	r.putEdge(u, e)
	r.putEdge(e.End, e.mirrorOf(u))
}

// putEdge inserts one side of an edge in order
func (r *Graph) putEdge(u int, e GraphEdge) {
	node := &r.Nodes[u]
	if i := node.findEdge(&e); i >= 0 {
		node.Edge[i] = e
		return
	}
	node.Edge = append(node.Edge, e)
	node.sortEdges()
}

// deleteEdge removes the edge at u and its mirror
func (r *Graph) deleteEdge(u int, e GraphEdge) {
	r.dropEdge(u, e)
	r.dropEdge(e.End, e.mirrorOf(u))
}

// dropEdge removes one side of an edge
func (r *Graph) dropEdge(u int, e GraphEdge) {
	node := &r.Nodes[u]
	if i := node.findEdge(&e); i >= 0 {
		node.Edge = append(node.Edge[:i], node.Edge[i+1:]...)
	}
}

// deleteAllEdges removes every edge of u, on the given side only when direction != 0
func (r *Graph) deleteAllEdges(u int, direction int8) int {
	var doomed []GraphEdge
	for _, e := range r.Nodes[u].Edge {
		if direction == 0 || e.Direction == direction {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		r.deleteEdge(u, e)
	}
	return len(doomed)
}

// clearEdges drops every edge in the graph
func (r *Graph) clearEdges() {
	for i := range r.Nodes {
		r.Nodes[i].Edge = nil
	}
}

// NumEdges counts edges, each adjacency once
func (r *Graph) NumEdges() int {
	n := 0
	for i := range r.Nodes {
		n += len(r.Nodes[i].Edge)
	}
	return n / 2
}

// NumActiveNodes counts the nodes that are neither included nor deleted
func (r *Graph) NumActiveNodes() int {
	n := 0
	for i := range r.Nodes {
		if r.Nodes[i].isActive() {
			n++
		}
	}
	return n
}

// forEachNode runs fn over all nodes in parallel batches. fn must only write to
// state owned by node u.
func (r *Graph) forEachNode(ctx context.Context, fn func(u int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.numThread)
	for lo := 0; lo < len(r.Nodes); lo += nodeBatchSize {
		lo := lo
		hi := lo + nodeBatchSize
		if hi > len(r.Nodes) {
			hi = len(r.Nodes)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for u := lo; u < hi; u++ {
				fn(u)
			}
			return nil
		})
	}
	return g.Wait()
}

// placement is where the neighbour of an edge lies in the forward frame of u
func (r *Graph) placement(u int, e *GraphEdge) Interval {
	lu := r.Nodes[u].Length
	lv := r.Nodes[e.End].Length
	if e.Direction > 0 {
		return Interval{lu + e.Length, lu + e.Length + lv}
	}
	return Interval{-e.Length - lv, -e.Length}
}

// conflicting tells if two edges on the same side of u place their neighbours on
// top of each other, allowing tolerence bases of slack
func (r *Graph) conflicting(u int, e1, e2 *GraphEdge, tolerence int64) bool {
	if e1.Direction != e2.Direction {
		return false
	}
	p1 := r.placement(u, e1)
	p2 := r.placement(u, e2)
	if p1.End <= p2.Start+tolerence || p2.End <= p1.Start+tolerence {
		return false
	}
	return true
}

// NodeCoverage is the length-weighted mean coverage of the contigs of a node
func (r *Graph) NodeCoverage(u int) float64 {
	sum, total := 0.0, 0.0
	for _, part := range r.Nodes[u].Contig {
		length := float64(part.End - part.Start)
		sum += float64(r.contigs.Contigs[part.Contig].Coverage) * length
		total += length
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// nodeName is a short label of the node, the name of its first contig
func (r *Graph) nodeName(u int) string {
	node := &r.Nodes[u]
	if len(node.Contig) == 0 {
		return fmt.Sprintf("node%d", u)
	}
	name := r.contigs.Contigs[node.Contig[0].Contig].Name
	if len(node.Contig) > 1 {
		name += fmt.Sprintf("+%d", len(node.Contig)-1)
	}
	return name
}

// CheckInvariants panics when the graph structure is broken
func (r *Graph) CheckInvariants() {
	for u := range r.Nodes {
		node := &r.Nodes[u]
		length := int64(0)
		for i, part := range node.Contig {
			assertf(part.Contig >= 0 && part.Contig < r.contigs.Len(),
				"node %d has unknown contig %d", u, part.Contig)
			assertf(part.Start <= part.End, "node %d has inverted part %v", u, part)
			assertf(part.Strand == 1 || part.Strand == -1, "node %d has bad strand %v", u, part)
			if i > 0 {
				assertf(node.Contig[i-1].Start <= part.Start, "node %d has unsorted parts", u)
			}
			length = max64(length, part.End)
		}
		assertf(len(node.Contig) == 0 || length == node.Length,
			"node %d has length %d, parts end at %d", u, node.Length, length)
		if !node.isActive() {
			assertf(len(node.Edge) == 0, "inactive node %d has %d edges", u, len(node.Edge))
		}
		for i := range node.Edge {
			e := &node.Edge[i]
			if i > 0 {
				assertf(edgeLess(&node.Edge[i-1], e), "node %d has unsorted edges", u)
			}
			assertf(e.End != u, "node %d has a self edge", u)
			assertf(e.NumLink >= r.minLink, "node %d has edge %v below min link", u, e)
			mirror := e.mirrorOf(u)
			j := r.Nodes[e.End].findEdge(&mirror)
			assertf(j >= 0, "edge %d %v has no mirror", u, e)
			m := &r.Nodes[e.End].Edge[j]
			assertf(m.NumLink == e.NumLink && m.Length == e.Length,
				"edge %d %v differs from its mirror %v", u, e, m)
		}
	}
}
