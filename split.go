/*
 *  split.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/13/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Split removes every edge on a node side that holds two conflicting edges, such
// junctions are left unresolved
func (r *Graph) Split() int {
	tolerence := r.tolerence()
	var sides [][2]int
	for u := range r.Nodes {
		node := &r.Nodes[u]
		if !node.isActive() {
			continue
		}
		for _, direction := range []int8{-1, 1} {
			if r.hasConflict(u, direction, tolerence) {
				sides = append(sides, [2]int{u, int(direction)})
			}
		}
	}
	nDeleted := 0
	for _, side := range sides {
		nDeleted += r.deleteAllEdges(side[0], int8(side[1]))
	}
	r.Stats.ConflictingEdges += int64(nDeleted)
	log.Noticef("Split %d conflicting node sides (%d edges)", len(sides), nDeleted)
	return nDeleted
}

// hasConflict tells if two edges on one side of u place their neighbours on top of
// each other
func (r *Graph) hasConflict(u int, direction int8, tolerence int64) bool {
	edges := r.Nodes[u].Edge
	for i := range edges {
		if edges[i].Direction != direction {
			continue
		}
		for j := i + 1; j < len(edges) && edges[j].Direction == direction; j++ {
			if r.conflicting(u, &edges[i], &edges[j], tolerence) {
				return true
			}
		}
	}
	return false
}

// junction is a gap between two consecutive merged intervals of a node
type junction struct {
	Node        int
	Left, Right Interval
}

// Gap is the distance between the two flanking intervals
func (r junction) Gap() int64 {
	return r.Right.Start - r.Left.End
}

// junctions lists the gaps of every node, with the merged intervals of each node
func (r *Graph) junctions() ([]junction, [][]Interval, []int) {
	var junctions []junction
	intervals := make([][]Interval, len(r.Nodes))
	first := make([]int, len(r.Nodes))
	for u := range r.Nodes {
		first[u] = len(junctions)
		if !r.Nodes[u].isActive() {
			continue
		}
		intervals[u] = MergeIntervals(r.Nodes[u].Contig)
		for k := 0; k+1 < len(intervals[u]); k++ {
			junctions = append(junctions, junction{u, intervals[u][k], intervals[u][k+1]})
		}
	}
	return junctions, intervals, first
}

// intervalIndex finds the interval that contains pos, -1 if none
func intervalIndex(intervals []Interval, pos int64) int {
	k := sort.Search(len(intervals), func(i int) bool {
		return intervals[i].End > pos
	})
	if k < len(intervals) && intervals[k].Start <= pos {
		return k
	}
	return -1
}

// pairJunction finds the junction bridged by a pair whose mates lie in two
// consecutive intervals of the same node, -1 if none. The pair is spanning when its
// mates face each other at the insert size, erroneous otherwise.
func (r *Graph) pairJunction(pair *MappedPair, lib *Library, tolerence int64,
	intervals [][]Interval, first []int) (int, bool) {
	n1, p1, s1, ok1 := r.liftMate(&pair.Mate1)
	n2, p2, s2, ok2 := r.liftMate(&pair.Mate2)
	if !ok1 || !ok2 || n1 != n2 {
		return -1, false
	}
	k1 := intervalIndex(intervals[n1], p1)
	k2 := intervalIndex(intervals[n1], p2)
	if k1 < 0 || k2 < 0 || abs64(int64(k1-k2)) != 1 {
		return -1, false
	}
	j := first[n1] + minInt(k1, k2)
	if s1 == s2 {
		return j, false
	}
	// The forward mate is the leftmost one
	left, right := p1, p2+pair.Mate2.Len
	if s1 < 0 {
		left, right = p2, p1+pair.Mate1.Len
	}
	if right <= left {
		return j, false
	}
	insert := right - left
	return j, abs64(insert-int64(Round(lib.AvgInsert))) <= tolerence
}

// countJunctionPairs counts, per junction, the spanning and the erroneous pairs of
// each library. Workers keep their own counters which are summed in worker order.
func (r *Graph) countJunctionPairs(ctx context.Context, nJunctions int,
	intervals [][]Interval, first []int) ([]int64, []int64, error) {
	spanning := make([]int64, nJunctions)
	erroneous := make([]int64, nJunctions)
	for k := r.active; k < len(r.libraries); k++ {
		lib := r.libraries[k]
		tolerence := r.libTolerence(k)
		var partial [][2][]int64
		for start := 0; start < len(lib.Pairs); start += linkBatchSize {
			partial = append(partial, [2][]int64{make([]int64, nJunctions), make([]int64, nJunctions)})
		}
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(r.numThread)
		for b := range partial {
			b := b
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				end := min64(int64(b+1)*linkBatchSize, int64(len(lib.Pairs)))
				for i := b * linkBatchSize; i < int(end); i++ {
					j, ok := r.pairJunction(&lib.Pairs[i], lib, tolerence, intervals, first)
					if j < 0 {
						continue
					}
					if ok {
						partial[b][0][j]++
					} else {
						partial[b][1][j]++
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		for b := range partial {
			for j := 0; j < nJunctions; j++ {
				spanning[j] += partial[b][0][j]
				erroneous[j] += partial[b][1][j]
			}
		}
	}
	return spanning, erroneous, nil
}

// deleteErroneousPairs drops the pairs that contradict a junction which is kept,
// they would only make false links once the node is cut in a later round
func (r *Graph) deleteErroneousPairs(cut []bool, intervals [][]Interval, first []int) int {
	nDeleted := 0
	for k := r.active; k < len(r.libraries); k++ {
		lib := r.libraries[k]
		tolerence := r.libTolerence(k)
		kept := lib.Pairs[:0]
		for i := range lib.Pairs {
			j, ok := r.pairJunction(&lib.Pairs[i], lib, tolerence, intervals, first)
			if j >= 0 && !ok && !cut[j] {
				nDeleted++
				continue
			}
			kept = append(kept, lib.Pairs[i])
		}
		lib.Pairs = kept
	}
	return nDeleted
}

// isLowCoverage compares the spanning pairs of a junction with the expectation
func (r *Graph) isLowCoverage(j *junction, spanning int64) bool {
	if spanning >= r.minLink {
		return false
	}
	leftLen := j.Left.End - j.Left.Start
	rightLen := j.Right.End - j.Right.Start
	expected := 0.0
	possible := int64(0)
	for k := r.active; k < len(r.libraries); k++ {
		lib := r.libraries[k]
		possible += CalcNumPossiblePosition(lib, leftLen, rightLen, j.Gap(), int64(Round(lib.AvgInsert)))
		expected += CalcExpectedLink(lib, float64(leftLen), float64(rightLen), float64(j.Gap()))
	}
	if possible == 0 || expected <= 0 {
		return false
	}
	return float64(spanning)/expected < EdgeExpectedRateTh
}

// SplitLowCoverageLink cuts the merged nodes at the junctions that too few pairs
// span, and deletes the mapped pairs contradicting the junctions that stay. The
// edges are dropped, the next round rebuilds them.
func (r *Graph) SplitLowCoverageLink(ctx context.Context) (int, error) {
	r.clearEdges()
	junctions, intervals, first := r.junctions()
	if len(junctions) == 0 {
		return 0, nil
	}
	spanning, erroneous, err := r.countJunctionPairs(ctx, len(junctions), intervals, first)
	if err != nil {
		return 0, err
	}

	cuts := map[int][]int64{}
	cut := make([]bool, len(junctions))
	nCut := 0
	nErroneous := int64(0)
	for i := range junctions {
		j := &junctions[i]
		nErroneous += erroneous[i]
		if r.isLowCoverage(j, spanning[i]) {
			cuts[j.Node] = append(cuts[j.Node], j.Right.Start)
			cut[i] = true
			nCut++
		}
	}
	nDeleted := r.deleteErroneousPairs(cut, intervals, first)

	nNodes := len(r.Nodes)
	for u := 0; u < nNodes; u++ {
		if points, ok := cuts[u]; ok {
			r.cutNode(u, points)
		}
	}
	r.updatePositions()
	r.Stats.LowCoverageCuts += int64(nCut)
	r.Stats.ErroneousPairs += int64(nDeleted)
	log.Noticef("Split %d of %d junctions with low coverage, delete %d of %d erroneous pairs",
		nCut, len(junctions), nDeleted, nErroneous)
	return nCut, nil
}

// cutNode splits u at the given junction starts, the first piece stays in u and the
// others are appended as new nodes
func (r *Graph) cutNode(u int, points []int64) {
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	pieces := make([][]ScaffoldPart, len(points)+1)
	for _, part := range r.Nodes[u].Contig {
		k := sort.Search(len(points), func(i int) bool { return points[i] > part.Start })
		pieces[k] = append(pieces[k], part)
	}
	for k, parts := range pieces {
		if len(parts) == 0 {
			continue
		}
		shift := parts[0].Start
		for i := range parts {
			parts[i].Start -= shift
			parts[i].End -= shift
		}
		node := GraphNode{Contig: parts}
		node.sortParts()
		if k == 0 {
			r.Nodes[u].Contig = node.Contig
			r.Nodes[u].Length = node.Length
			continue
		}
		r.Nodes = append(r.Nodes, node)
	}
}
