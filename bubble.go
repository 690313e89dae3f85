/*
 *  bubble.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/12/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"sort"
)

// bubbleCandidate is a pair of arms between the same two nodes, Removed is the arm
// to crush
type bubbleCandidate struct {
	Kept, Removed int
	Identity      float64
}

// farEdges lists the edges of v leaving the side away from u, where v hangs from u
// through e
func farEdges(v *GraphNode, direction, strand int8) []GraphEdge {
	var edges []GraphEdge
	far := direction * strand
	for _, f := range v.Edge {
		if f.Direction == far {
			edges = append(edges, f)
		}
	}
	return edges
}

// joinSameSide tells if the two arms reach the same side of a common node w
func (r *Graph) joinSameSide(u int, e1, e2 *GraphEdge) bool {
	for _, f1 := range farEdges(&r.Nodes[e1.End], e1.Direction, e1.Strand) {
		if f1.End == u || f1.End == e2.End {
			continue
		}
		for _, f2 := range farEdges(&r.Nodes[e2.End], e2.Direction, e2.Strand) {
			if f2.End == f1.End && e1.Strand*f1.Strand == e2.Strand*f2.Strand {
				return true
			}
		}
	}
	return false
}

// similarLength tells if two arms differ in length by at most MaxDiffRate
func similarLength(l1, l2 int64) bool {
	return float64(abs64(l1-l2)) <= MaxDiffRate*float64(max64(l1, l2))
}

// bubblesAt finds the bubbles opening at u. Both arms are read in the frame of u
// and aligned, the lower coverage arm is the one to crush.
func (r *Graph) bubblesAt(u int, heteroOnly bool, minIdentity float64, tolerence int64) []bubbleCandidate {
	node := &r.Nodes[u]
	if !node.isActive() || node.State&StateRepeat != 0 {
		return nil
	}
	var candidates []bubbleCandidate
	for i := range node.Edge {
		for j := i + 1; j < len(node.Edge); j++ {
			e1, e2 := &node.Edge[i], &node.Edge[j]
			if e1.Direction != e2.Direction {
				break
			}
			v1, v2 := &r.Nodes[e1.End], &r.Nodes[e2.End]
			if e1.End == e2.End || !v1.isActive() || !v2.isActive() ||
				(v1.State|v2.State)&StateRepeat != 0 {
				continue
			}
			if heteroOnly && (v1.IsHomo || v2.IsHomo) {
				continue
			}
			if !similarLength(v1.Length, v2.Length) || !r.joinSameSide(u, e1, e2) {
				continue
			}
			s1 := r.nodeSequence(e1.End, e1.Strand)
			s2 := r.nodeSequence(e2.End, e2.Strand)
			band := int(abs64(v1.Length-v2.Length) + tolerence)
			identity := alignmentIdentity(s1, s2, band)
			if identity < minIdentity {
				continue
			}
			kept, removed := e1.End, e2.End
			c1, c2 := r.NodeCoverage(kept), r.NodeCoverage(removed)
			if c1 < c2 || (c1 == c2 && kept > removed) {
				kept, removed = removed, kept
			}
			candidates = append(candidates, bubbleCandidate{kept, removed, identity})
		}
	}
	return candidates
}

// crushBubble makes one pass: detection in parallel, then the crushing in order of
// the removed arm
func (r *Graph) crushBubble(ctx context.Context, heteroOnly bool, minIdentity float64) (int, error) {
	tolerence := r.tolerence()
	found := make([][]bubbleCandidate, len(r.Nodes))
	err := r.forEachNode(ctx, func(u int) {
		found[u] = r.bubblesAt(u, heteroOnly, minIdentity, tolerence)
	})
	if err != nil {
		return 0, err
	}
	var candidates []bubbleCandidate
	for u := range found {
		candidates = append(candidates, found[u]...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Removed != candidates[j].Removed {
			return candidates[i].Removed < candidates[j].Removed
		}
		return candidates[i].Kept < candidates[j].Kept
	})

	nCrushed := 0
	for _, c := range candidates {
		if !r.Nodes[c.Kept].isActive() || !r.Nodes[c.Removed].isActive() {
			continue
		}
		r.bubbles = append(r.bubbles, Bubble{
			Name: r.nodeName(c.Removed),
			Seq:  r.nodeSequence(c.Removed, 1),
		})
		r.deleteAllEdges(c.Removed, 0)
		r.Nodes[c.Removed].State |= StateDeleted
		r.CountBubble(c.Kept)
		nCrushed++
	}
	r.updatePositions()
	return nCrushed, nil
}

// CrushHeteroBubble crushes the bubbles made of two heterozygous arms that align
// within MaxHeteroRate
func (r *Graph) CrushHeteroBubble(ctx context.Context) (int, error) {
	n, err := r.crushBubble(ctx, true, 1-MaxHeteroRate)
	if err != nil {
		return n, err
	}
	r.Stats.Bubbles += int64(n)
	log.Noticef("Crush %d heterozygous bubbles", n)
	return n, nil
}

// CrushBubbleIterative crushes any bubble whose arms align within bubbleThreshold,
// until no bubble is left
func (r *Graph) CrushBubbleIterative(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.crushBubble(ctx, false, 1-r.bubbleThreshold)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	r.Stats.Bubbles += int64(total)
	log.Noticef("Crush %d bubbles at threshold %.2f", total, r.bubbleThreshold)
	return total, nil
}

// Bubbles returns the crushed arms
func (r *Graph) Bubbles() []Bubble {
	return r.bubbles
}

// alignmentIdentity is 1 - edit distance / longer length
func alignmentIdentity(a, b []byte, band int) float64 {
	longer := maxInt(len(a), len(b))
	if longer == 0 {
		return 1
	}
	return 1 - float64(bandedEditDistance(a, b, band))/float64(longer)
}

// bandedEditDistance is the edit distance between a and b with the alignment kept
// within `band` diagonals of the main one. N matches any base.
func bandedEditDistance(a, b []byte, band int) int {
	n, m := len(a), len(b)
	if band < 0 {
		band = 0
	}
	if n-m > band || m-n > band {
		return maxInt(n, m)
	}
	inf := n + m + 1
	prev := make([]int, m+2)
	cur := make([]int, m+2)
	for j := 0; j <= m+1; j++ {
		prev[j] = inf
		cur[j] = inf
	}
	for j := 0; j <= m && j <= band; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		lo := maxInt(1, i-band)
		hi := m
		if i+band < m {
			hi = i + band
		}
		if lo-1 == 0 && i <= band {
			cur[0] = i
		} else {
			cur[lo-1] = inf
		}
		for j := lo; j <= hi; j++ {
			cost := 1
			if a[i-1] == b[j-1] || a[i-1] == 'N' || b[j-1] == 'N' {
				cost = 0
			}
			best := prev[j-1] + cost
			if prev[j]+1 < best {
				best = prev[j] + 1
			}
			if cur[j-1]+1 < best {
				best = cur[j-1] + 1
			}
			cur[j] = best
		}
		cur[hi+1] = inf
		prev, cur = cur, prev
	}
	if prev[m] >= inf {
		return maxInt(n, m)
	}
	return prev[m]
}
