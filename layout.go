/*
 *  layout.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/14/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bytes"
	"container/heap"
	"sort"
)

// GraphLayout is the placement of a node relative to a reference node
type GraphLayout struct {
	Node       int
	Strand     int8
	Start, End int64
	Distance   int64
	NumLink    int64
}

// sortLayouts orders layouts by Start, then End
func sortLayouts(layouts []GraphLayout) {
	sort.SliceStable(layouts, func(i, j int) bool {
		if layouts[i].Start != layouts[j].Start {
			return layouts[i].Start < layouts[j].Start
		}
		return layouts[i].End < layouts[j].End
	})
}

// LayoutNodes places the neighbours on one side of u in the forward frame of u
func (r *Graph) LayoutNodes(u int, direction int8) []GraphLayout {
	var layouts []GraphLayout
	for i := range r.Nodes[u].Edge {
		e := &r.Nodes[u].Edge[i]
		if e.Direction != direction {
			continue
		}
		p := r.placement(u, e)
		layouts = append(layouts, GraphLayout{
			Node:     e.End,
			Strand:   e.Strand,
			Start:    p.Start,
			End:      p.End,
			Distance: e.Length,
			NumLink:  e.NumLink,
		})
	}
	sortLayouts(layouts)
	return layouts
}

// bestEdge returns the best supported edge on one side of u, nil if none
func (r *Graph) bestEdge(u int, direction int8) *GraphEdge {
	var best *GraphEdge
	for i := range r.Nodes[u].Edge {
		e := &r.Nodes[u].Edge[i]
		if e.Direction != direction {
			continue
		}
		if best == nil || stronger(e, best) {
			best = e
		}
	}
	return best
}

// isMutualBest tells if the edge is the best on its side of both endpoints
func (r *Graph) isMutualBest(u int, e *GraphEdge) bool {
	best := r.bestEdge(u, e.Direction)
	if best == nil || !sameKey(best, e) {
		return false
	}
	mirror := e.mirrorOf(u)
	best = r.bestEdge(e.End, mirror.Direction)
	return best != nil && sameKey(best, &mirror)
}

// MakeScaffold contracts mutual-best edges, best supported first, until none is left
func (r *Graph) MakeScaffold() int {
	pq := make(PriorityQueue, 0)
	for u := range r.Nodes {
		r.pushEdges(&pq, u)
	}
	heap.Init(&pq)

	nMerged := 0
	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*Item)
		u, e := item.u, item.edge
		if !r.Nodes[u].isActive() || !r.Nodes[e.End].isActive() {
			continue
		}
		i := r.Nodes[u].findEdge(&e)
		if i < 0 || r.Nodes[u].Edge[i].NumLink != e.NumLink || r.Nodes[u].Edge[i].Length != e.Length {
			continue
		}
		if !r.isMutualBest(u, &e) {
			continue
		}
		merged := r.mergeNodes(u, e)
		// The best edges of the neighbours may have changed too
		for _, it := range r.edgeItems(merged) {
			heap.Push(&pq, it)
			for _, nt := range r.edgeItems(it.edge.End) {
				heap.Push(&pq, nt)
			}
		}
		nMerged++
	}
	r.updatePositions()
	r.Stats.Merges += int64(nMerged)
	log.Noticef("Make scaffold: %d merges, %d nodes left", nMerged, r.NumActiveNodes())
	return nMerged
}

// edgeItems turns the edges of u into queue items
func (r *Graph) edgeItems(u int) []*Item {
	var items []*Item
	for _, e := range r.Nodes[u].Edge {
		items = append(items, &Item{u: u, edge: e})
	}
	return items
}

// pushEdges queues each edge of u once, from its smaller endpoint
func (r *Graph) pushEdges(pq *PriorityQueue, u int) {
	if !r.Nodes[u].isActive() {
		return
	}
	for _, e := range r.Nodes[u].Edge {
		if u < e.End {
			*pq = append(*pq, &Item{u: u, edge: e})
		}
	}
}

// orientPart places a part of a node read on `strand` into a frame where the node
// starts at offset
func orientPart(part ScaffoldPart, strand int8, length, offset int64) ScaffoldPart {
	if strand > 0 {
		return ScaffoldPart{part.Contig, part.Strand, offset + part.Start, offset + part.End}
	}
	return ScaffoldPart{part.Contig, -part.Strand, offset + length - part.End, offset + length - part.Start}
}

// orientInterval is orientPart for an interval
func orientInterval(iv Interval, strand int8, length, offset int64) Interval {
	if strand > 0 {
		return Interval{offset + iv.Start, offset + iv.End}
	}
	return Interval{offset + length - iv.End, offset + length - iv.Start}
}

// edgeFromPlacement is the edge of a node of the given length towards a neighbour
// lying at q on the side `direction`
func edgeFromPlacement(length int64, direction int8, end int, strand int8, q Interval,
	numLink int64, breakdown []int64) GraphEdge {
	gap := q.Start - length
	if direction < 0 {
		gap = -q.End
	}
	return GraphEdge{direction, end, strand, gap, numLink, breakdown}
}

// mergeNodes contracts the edge: v is laid out next to u, u keeps all the parts and
// the translated edges of both nodes, v is marked included
func (r *Graph) mergeNodes(u int, e GraphEdge) int {
	v := e.End
	if v < u {
		u, e = v, e.mirrorOf(u)
		v = e.End
	}
	nu, nv := &r.Nodes[u], &r.Nodes[v]
	lu, lv := nu.Length, nv.Length
	vStart := lu + e.Length
	if e.Direction < 0 {
		vStart = -e.Length - lv
	}
	uOffset := -min64(0, vStart)
	vOffset := vStart + uOffset

	// Parts in the merged frame
	parts := make([]ScaffoldPart, 0, len(nu.Contig)+len(nv.Contig))
	for _, part := range nu.Contig {
		parts = append(parts, orientPart(part, 1, lu, uOffset))
	}
	for _, part := range nv.Contig {
		parts = append(parts, orientPart(part, e.Strand, lv, vOffset))
	}
	merged := GraphNode{Contig: parts}
	merged.sortParts()

	// Edges of both nodes seen from the merged node
	var translated []GraphEdge
	for i := range nu.Edge {
		f := &nu.Edge[i]
		if f.End == v {
			continue
		}
		q := orientInterval(r.placement(u, f), 1, lu, uOffset)
		translated = append(translated,
			edgeFromPlacement(merged.Length, f.Direction, f.End, f.Strand, q, f.NumLink, f.Breakdown))
	}
	for i := range nv.Edge {
		f := &nv.Edge[i]
		if f.End == u {
			continue
		}
		q := orientInterval(r.placement(v, f), e.Strand, lv, vOffset)
		translated = append(translated,
			edgeFromPlacement(merged.Length, f.Direction*e.Strand, f.End, f.Strand*e.Strand, q, f.NumLink, f.Breakdown))
	}

	r.deleteAllEdges(u, 0)
	r.deleteAllEdges(v, 0)
	nu.Contig, nu.Length = merged.Contig, merged.Length
	nu.IsHomo = nu.IsHomo && nv.IsHomo
	nu.State |= nv.State & StateRepeat
	nv.Contig = nil
	nv.Length = 0
	nv.State |= StateIncluded

	minGap := -(r.maxOverlap + r.tolerence())
	for _, f := range r.dedupEdges(translated) {
		// Neighbours now buried inside the merged node are dropped
		if f.End == u || f.End == v || f.Length < minGap {
			continue
		}
		r.addEdge(u, f)
	}
	return u
}

// dedupEdges combines the translated edges with the same key. Consistent gaps are
// pooled, otherwise the better supported edge wins.
func (r *Graph) dedupEdges(edges []GraphEdge) []GraphEdge {
	sort.SliceStable(edges, func(i, j int) bool {
		return edgeLess(&edges[i], &edges[j])
	})
	tolerence := r.tolerence()
	var result []GraphEdge
	for _, e := range edges {
		n := len(result)
		if n == 0 || !sameKey(&result[n-1], &e) {
			result = append(result, e)
			continue
		}
		last := &result[n-1]
		if abs64(last.Length-e.Length) <= tolerence {
			total := last.NumLink + e.NumLink
			last.Length = int64(Round(float64(last.Length*last.NumLink+e.Length*e.NumLink) / float64(total)))
			last.NumLink = total
			last.Breakdown = addBreakdown(last.Breakdown, e.Breakdown)
		} else if stronger(&e, last) {
			*last = e
		}
	}
	return result
}

// addBreakdown sums two per-library counts
func addBreakdown(a, b []int64) []int64 {
	n := maxInt(len(a), len(b))
	sum := make([]int64, n)
	for i := range a {
		sum[i] += a[i]
	}
	for i := range b {
		sum[i] += b[i]
	}
	return sum
}

// Layout2Seq builds the consensus sequence of a node. Parts are visited by start,
// gaps are filled with N, overlaps are joined when the overlap index or the bases
// confirm them, otherwise a single N separates the parts. The placements of all
// the parts in the returned sequence come along, a contig contained in the previous
// one adds no bases but keeps its placement inside it.
func (r *Graph) Layout2Seq(u int) ([]byte, []ScaffoldPart) {
	node := &r.Nodes[u]
	var seq []byte
	var placements []ScaffoldPart
	var prev ScaffoldPart
	prevStart := int64(0)
	pos := int64(0)
	for i, part := range node.Contig {
		contig := r.contigs.OrientedSeq(part.Oriented())
		clen := int64(len(contig))
		if i > 0 && part.End <= pos {
			start := prevStart + part.Start - prev.Start
			placements = append(placements, ScaffoldPart{part.Contig, part.Strand, start, start + clen})
			continue
		}
		start := int64(len(seq))
		switch {
		case i == 0:
			seq = append(seq, contig...)
		case part.Start > pos:
			seq = append(seq, bytes.Repeat([]byte{'N'}, int(part.Start-pos))...)
			start = int64(len(seq))
			seq = append(seq, contig...)
		default:
			ov := r.confirmedOverlap(seq, prev, part, contig, pos-part.Start)
			if ov > 0 {
				start = int64(len(seq)) - ov
				seq = append(seq, contig[ov:]...)
			} else {
				seq = append(seq, 'N')
				start = int64(len(seq))
				seq = append(seq, contig...)
			}
		}
		placements = append(placements, ScaffoldPart{part.Contig, part.Strand, start, start + clen})
		prev, prevStart = part, start
		pos = part.End
	}
	return seq, placements
}

// confirmedOverlap checks the expected overlap between the written sequence ending
// with prev and the next contig. Returns the overlap to use, 0 when unconfirmed.
func (r *Graph) confirmedOverlap(seq []byte, prev, part ScaffoldPart, contig []byte, expected int64) int64 {
	limit := min64(int64(len(seq)), int64(len(contig))-1)
	if expected <= 0 {
		return 0
	}
	if ov := r.overlaps.LookupSimilar(prev.Oriented(), part.Oriented(), expected); ov > 0 && ov <= limit {
		return ov
	}
	if expected <= limit && bytes.Equal(seq[int64(len(seq))-expected:], contig[:expected]) {
		return expected
	}
	return 0
}

// nodeSequence is the consensus of a node on the given strand
func (r *Graph) nodeSequence(u int, strand int8) []byte {
	seq, _ := r.Layout2Seq(u)
	if strand < 0 {
		return reverseComplement(seq)
	}
	return seq
}
