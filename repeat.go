/*
 *  repeat.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/10/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"sync/atomic"
)

// CountBubble marks the contigs of a node as part of a bubble
func (r *Graph) CountBubble(u int) {
	for _, part := range r.Nodes[u].Contig {
		atomic.AddInt32(&r.numBubble[part.Contig], 1)
	}
}

// hasBubble tells if any contig of the node was seen in a bubble
func (r *Graph) hasBubble(u int) bool {
	for _, part := range r.Nodes[u].Contig {
		if atomic.LoadInt32(&r.numBubble[part.Contig]) > 0 {
			return true
		}
	}
	return false
}

// ClassifyNode flags the nodes of homozygous content. Nodes well below the average
// coverage, or touching a crushed bubble, are heterozygous.
func (r *Graph) ClassifyNode() {
	nHomo := 0
	for u := range r.Nodes {
		node := &r.Nodes[u]
		node.IsHomo = r.NodeCoverage(u) >= HomoCoverageRate*r.averageCoverage && !r.hasBubble(u)
		if node.IsHomo {
			nHomo++
		}
	}
	log.Noticef("Classify nodes: %s homozygous", Percentage(nHomo, len(r.Nodes)))
}

// DetectRepeat flags the nodes whose coverage reaches RepeatCoverageRate times the
// average coverage
func (r *Graph) DetectRepeat() int {
	nRepeat := 0
	if r.averageCoverage <= 0 {
		return 0
	}
	for u := range r.Nodes {
		node := &r.Nodes[u]
		if !node.isActive() {
			continue
		}
		if r.NodeCoverage(u)/r.averageCoverage >= RepeatCoverageRate {
			node.State |= StateRepeat
			nRepeat++
		}
	}
	r.Stats.RepeatNodes += int64(nRepeat)
	log.Noticef("Detect repeats: %s nodes at >= %.2fx average coverage %.1f",
		Percentage(nRepeat, len(r.Nodes)), RepeatCoverageRate, r.averageCoverage)
	return nRepeat
}

// DeleteRepeatEdge removes every edge touching a repeat
func (r *Graph) DeleteRepeatEdge() int {
	nDeleted := 0
	for u := range r.Nodes {
		if r.Nodes[u].State&StateRepeat != 0 {
			nDeleted += r.deleteAllEdges(u, 0)
		}
	}
	r.Stats.RepeatEdges += int64(nDeleted)
	log.Noticef("Delete %d edges of repeats", nDeleted)
	return nDeleted
}
