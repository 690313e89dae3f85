/*
 *  kernel.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/05/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"math"
	"sort"

	"github.com/gonum/floats"
)

// Interval is a half-open range [Start, End) in node coordinates
type Interval struct {
	Start, End int64
}

// kernelH is the antiderivative of the Gaussian CDF term:
// H(x) = x * erf(x / (sqrt(2) sd)) + sqrt(2) sd / sqrt(pi) * exp(-x^2 / (2 sd^2))
// With sd = 0 the insert size is a delta function and H(x) = |x|.
func kernelH(x, sd float64) float64 {
	if sd <= 0 {
		return math.Abs(x)
	}
	z := x / (math.Sqrt2 * sd)
	return x*math.Erf(z) + math.Sqrt2*sd/math.SqrtPi*math.Exp(-z*z)
}

// CalcExpectedLink calculates the expected number of links between two segments of
// length link1 and link2 separated by gap g, given the library insert size model.
//
// E = c / (4r) * [H(L1+g-mu+L2) - H(r+g-mu+L2) - H(L1+g-mu+r) + H(r+g-mu+r)]
func CalcExpectedLink(lib *Library, link1, link2, g float64) float64 {
	mu := lib.AvgInsert
	sd := lib.SdInsert
	r := lib.AvgReadLength
	if r <= 0 {
		return 0
	}
	numLink := kernelH(link1+g-mu+link2, sd)
	numLink -= kernelH(r+g-mu+link2, sd)
	numLink -= kernelH(link1+g-mu+r, sd)
	numLink += kernelH(r+g-mu+r, sd)
	numLink *= lib.AvgCoverage / (4.0 * r)
	if numLink < 0 || math.IsNaN(numLink) {
		return 0
	}
	return numLink
}

// MergeIntervals collapses overlapping or touching parts into maximal intervals,
// e.g. [0,100),[50,150),[200,300) => [0,150),[200,300)
func MergeIntervals(parts []ScaffoldPart) []Interval {
	if len(parts) == 0 {
		return nil
	}
	sorted := make([]ScaffoldPart, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	merged := []Interval{{sorted[0].Start, sorted[0].End}}
	for _, part := range sorted[1:] {
		last := &merged[len(merged)-1]
		if part.Start <= last.End {
			last.End = max64(last.End, part.End)
			continue
		}
		merged = append(merged, Interval{part.Start, part.End})
	}
	return merged
}

// orientedIntervals returns the merged intervals of a node, mirrored when the node
// is read on its reverse strand
func orientedIntervals(node *GraphNode, strand int8) []Interval {
	intervals := MergeIntervals(node.Contig)
	if strand > 0 {
		return intervals
	}
	n := len(intervals)
	flipped := make([]Interval, n)
	for i, iv := range intervals {
		flipped[n-1-i] = Interval{node.Length - iv.End, node.Length - iv.Start}
	}
	return flipped
}

// CalcExpectedLinkNode sums the expected links over all pairs of maximal intervals of
// the two nodes. node1 is oriented by strand1 and sits left of node2 (oriented by
// strand2), with `distance` between the end of node1 and the start of node2.
func CalcExpectedLinkNode(lib *Library, node1 *GraphNode, strand1 int8,
	node2 *GraphNode, strand2 int8, distance int64) float64 {
	if len(node1.Contig) == 0 || len(node2.Contig) == 0 {
		return 0
	}
	var terms []float64
	for _, iv1 := range orientedIntervals(node1, strand1) {
		for _, iv2 := range orientedIntervals(node2, strand2) {
			g := distance + node1.Length - iv1.End + iv2.Start
			terms = append(terms, CalcExpectedLink(lib,
				float64(iv1.End-iv1.Start), float64(iv2.End-iv2.Start), float64(g)))
		}
	}
	return floats.Sum(terms)
}

// CalcNumPossiblePosition counts the valid placements of a read pair of insert size
// insSize spanning two segments separated by distance
func CalcNumPossiblePosition(lib *Library, length1, length2, distance, insSize int64) int64 {
	minNodeLength := min64(length1, length2)
	totalNodeLength := length1 + length2
	readLength := int64(Round(lib.AvgReadLength))

	way := max64(0, insSize-max64(distance, 0)-readLength*2+1)
	way = min64(way, max64(0, minNodeLength+readLength+1))
	way = min64(way, max64(0, totalNodeLength+distance-insSize+1))
	return way
}

// CalcNumPossiblePositionNode sums CalcNumPossiblePosition over pairs of maximal
// intervals, with the same conventions as CalcExpectedLinkNode
func CalcNumPossiblePositionNode(lib *Library, node1 *GraphNode, strand1 int8,
	node2 *GraphNode, strand2 int8, distance, insSize int64) int64 {
	if len(node1.Contig) == 0 || len(node2.Contig) == 0 {
		return 0
	}
	way := int64(0)
	for _, iv1 := range orientedIntervals(node1, strand1) {
		for _, iv2 := range orientedIntervals(node2, strand2) {
			g := distance + node1.Length - iv1.End + iv2.Start
			way += CalcNumPossiblePosition(lib, iv1.End-iv1.Start, iv2.End-iv2.Start, g, insSize)
		}
	}
	return way
}
