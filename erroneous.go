/*
 *  erroneous.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/10/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
)

// expectedLink is the number of links the k-th library should put on the edge
func (r *Graph) expectedLink(k int, u int, e *GraphEdge) float64 {
	lib := r.libraries[k]
	if e.Direction > 0 {
		return CalcExpectedLinkNode(lib, &r.Nodes[u], 1, &r.Nodes[e.End], e.Strand, e.Length)
	}
	return CalcExpectedLinkNode(lib, &r.Nodes[e.End], e.Strand, &r.Nodes[u], 1, e.Length)
}

// observedLink is the number of links of the k-th library on the edge
func observedLink(e *GraphEdge, k int) float64 {
	if k < len(e.Breakdown) {
		return float64(e.Breakdown[k])
	}
	return 0
}

// isErroneous decides if e2 is an error given the stronger competing edge e1. The
// libraries are tried from the active one upwards until one of them expects enough
// links to tell, the pooled counts settle the remaining cases.
func (r *Graph) isErroneous(u int, e1, e2 *GraphEdge) bool {
	var sumExp1, sumExp2, sumObs1, sumObs2 float64
	for k := r.active; k < len(r.libraries); k++ {
		exp1 := r.expectedLink(k, u, e1)
		exp2 := r.expectedLink(k, u, e2)
		obs1 := observedLink(e1, k)
		obs2 := observedLink(e2, k)
		sumExp1 += exp1
		sumExp2 += exp2
		sumObs1 += obs1
		sumObs2 += obs2
		if exp1 < CheckUsingLongerLibTh && exp2 < CheckUsingLongerLibTh {
			continue
		}
		return obs2 < EdgeExpectedRateTh*exp1 && obs1 >= EdgeExpectedRateUpperTh*exp2
	}
	if sumExp1 < CheckUsingLongerLibTh && sumExp2 < CheckUsingLongerLibTh {
		return false
	}
	return sumObs2 < EdgeExpectedRateTh*sumExp1 && sumObs1 >= EdgeExpectedRateUpperTh*sumExp2
}

// stronger tells if e1 has more support than e2, ties go to the smaller key
func stronger(e1, e2 *GraphEdge) bool {
	if e1.NumLink != e2.NumLink {
		return e1.NumLink > e2.NumLink
	}
	return edgeLess(e1, e2)
}

// erroneousEdges lists the edges of u that lose against a conflicting edge on the
// same side
func (r *Graph) erroneousEdges(u int, tolerence int64) []GraphEdge {
	node := &r.Nodes[u]
	if !node.isActive() {
		return nil
	}
	var doomed []GraphEdge
	for i := range node.Edge {
		for j := i + 1; j < len(node.Edge); j++ {
			e1, e2 := &node.Edge[i], &node.Edge[j]
			if e1.Direction != e2.Direction {
				break
			}
			if !r.conflicting(u, e1, e2, tolerence) {
				continue
			}
			if !stronger(e1, e2) {
				e1, e2 = e2, e1
			}
			if r.isErroneous(u, e1, e2) {
				doomed = append(doomed, *e2)
			}
		}
	}
	return doomed
}

// DeleteErroneousEdge makes one pass: the decisions are taken in parallel on the
// current graph, then applied in node order
func (r *Graph) DeleteErroneousEdge(ctx context.Context) (int, error) {
	tolerence := r.tolerence()
	doomed := make([][]GraphEdge, len(r.Nodes))
	err := r.forEachNode(ctx, func(u int) {
		doomed[u] = r.erroneousEdges(u, tolerence)
	})
	if err != nil {
		return 0, err
	}
	nDeleted := 0
	for u := range doomed {
		for _, e := range doomed[u] {
			if r.Nodes[u].findEdge(&e) < 0 {
				continue
			}
			r.deleteEdge(u, e)
			nDeleted++
		}
	}
	return nDeleted, nil
}

// DeleteErroneousEdgeIterative repeats DeleteErroneousEdge until nothing changes
func (r *Graph) DeleteErroneousEdgeIterative(ctx context.Context) (int, error) {
	total := 0
	for {
		nDeleted, err := r.DeleteErroneousEdge(ctx)
		if err != nil {
			return total, err
		}
		if nDeleted == 0 {
			break
		}
		total += nDeleted
	}
	r.Stats.ErroneousEdges += int64(total)
	log.Noticef("Delete %d erroneous edges", total)
	return total, nil
}
