/**
 * Filename: /Users/bao/code/scaffolder/hetero.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Wednesday, March 11th 2020, 9:02:17 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

import (
	"fmt"
	"sort"
	"strings"

	hungarianAlgorithm "github.com/oddg/hungarian-algorithm"
)

// AlleleGroup stores the nodes that are considered allelic: heterozygous nodes
// hanging from the same side of a node at overlapping positions
type AlleleGroup []int

// key is a canonical string of the group members
func (r AlleleGroup) key() string {
	words := make([]string, len(r))
	for i, u := range r {
		words[i] = fmt.Sprint(u)
	}
	return strings.Join(words, ",")
}

// allelesAt groups the heterozygous neighbours on one side of u whose placements
// overlap, transitively
func (r *Graph) allelesAt(u int, direction int8, tolerence int64) []AlleleGroup {
	node := &r.Nodes[u]
	var candidates []int
	for i := range node.Edge {
		e := &node.Edge[i]
		if e.Direction == direction && !r.Nodes[e.End].IsHomo {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) < 2 {
		return nil
	}

	// Union-find over the conflicting candidates
	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if r.conflicting(u, &node.Edge[candidates[i]], &node.Edge[candidates[j]], tolerence) {
				parent[find(j)] = find(i)
			}
		}
	}

	members := map[int][]int{}
	for i, c := range candidates {
		root := find(i)
		members[root] = append(members[root], node.Edge[c].End)
	}
	var groups []AlleleGroup
	for _, m := range members {
		if len(m) < 2 {
			continue
		}
		sort.Ints(m)
		groups = append(groups, AlleleGroup(dedupInts(m)))
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}

// dedupInts removes repeated values from a sorted slice
func dedupInts(a []int) []int {
	j := 0
	for i := range a {
		if i == 0 || a[i] != a[j-1] {
			a[j] = a[i]
			j++
		}
	}
	return a[:j]
}

// DeleteHeteroEdge removes the cross-allelic edges. Between two allele groups only
// the edges in the maximum weight bipartite matching on link counts survive.
func (r *Graph) DeleteHeteroEdge() int {
	tolerence := r.tolerence()

	// Find all the allele groups
	groupID := map[string]int{}
	var groups []AlleleGroup
	nodeToGroups := map[int][]int{}
	for u := range r.Nodes {
		if !r.Nodes[u].isActive() {
			continue
		}
		for _, direction := range []int8{-1, 1} {
			for _, group := range r.allelesAt(u, direction, tolerence) {
				key := group.key()
				if _, ok := groupID[key]; ok {
					continue
				}
				groupID[key] = len(groups)
				for _, v := range group {
					nodeToGroups[v] = append(nodeToGroups[v], len(groups))
				}
				groups = append(groups, group)
			}
		}
	}
	if len(groups) < 2 {
		return 0
	}

	// Pairs of groups joined by at least one edge
	pairs := map[[2]int]bool{}
	for u, ga := range nodeToGroups {
		for _, e := range r.Nodes[u].Edge {
			for _, a := range ga {
				for _, b := range nodeToGroups[e.End] {
					if a < b && !sharesMember(groups[a], groups[b]) {
						pairs[[2]int{a, b}] = true
					}
				}
			}
		}
	}
	sortedPairs := make([][2]int, 0, len(pairs))
	for pair := range pairs {
		sortedPairs = append(sortedPairs, pair)
	}
	sort.Slice(sortedPairs, func(i, j int) bool {
		if sortedPairs[i][0] != sortedPairs[j][0] {
			return sortedPairs[i][0] < sortedPairs[j][0]
		}
		return sortedPairs[i][1] < sortedPairs[j][1]
	})

	nDeleted := 0
	for _, pair := range sortedPairs {
		nDeleted += r.pruneCrossAllelic(groups[pair[0]], groups[pair[1]])
	}
	r.Stats.HeteroEdges += int64(nDeleted)
	log.Noticef("Delete %d cross-allelic edges between %d allele groups", nDeleted, len(groups))
	return nDeleted
}

// sharesMember tells if two groups have a node in common
func sharesMember(a, b AlleleGroup) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// pruneCrossAllelic keeps only the matched edges between the two groups
func (r *Graph) pruneCrossAllelic(aGroup, bGroup AlleleGroup) int {
	partner := r.matchAlleles(aGroup, bGroup)
	if partner == nil {
		return 0
	}
	nDeleted := 0
	for i, a := range aGroup {
		var doomed []GraphEdge
		for _, e := range r.Nodes[a].Edge {
			for j, b := range bGroup {
				if e.End == b && partner[i] != j {
					doomed = append(doomed, e)
				}
			}
		}
		for _, e := range doomed {
			r.deleteEdge(a, e)
			nDeleted++
		}
	}
	return nDeleted
}

// matchAlleles pairs each member of aGroup with one member of bGroup so that the
// total number of links between the pairs is maximal. The result holds, for each
// member of aGroup, the index of its partner in bGroup; indices beyond bGroup mean
// no partner. The Hungarian solver minimizes costs on a square matrix, so links
// become costs by subtracting them from the largest count.
func (r *Graph) matchAlleles(aGroup, bGroup AlleleGroup) []int {
	n := maxInt(len(aGroup), len(bGroup))
	links := make([][]int64, n)
	for i := range links {
		links[i] = make([]int64, n)
	}
	maxLink := int64(0)
	for i, a := range aGroup {
		for _, e := range r.Nodes[a].Edge {
			for j, b := range bGroup {
				if e.End == b {
					links[i][j] += e.NumLink
					maxLink = max64(maxLink, links[i][j])
				}
			}
		}
	}
	costs := make([][]int, n)
	for i := range costs {
		costs[i] = make([]int, n)
		for j := range costs[i] {
			costs[i][j] = int(maxLink - links[i][j])
		}
	}
	partner, err := hungarianAlgorithm.Solve(costs)
	if err != nil {
		log.Errorf("Cannot match alleles %s and %s: %v", aGroup.key(), bGroup.key(), err)
		return nil
	}
	return partner[:len(aGroup)]
}

// facingContig is the contig at the 3' end of node u read on strand
func (r *Graph) facingContig(u int, strand int8) Oriented {
	parts := r.Nodes[u].Contig
	if strand > 0 {
		last := parts[0]
		for _, part := range parts[1:] {
			if part.End >= last.End {
				last = part
			}
		}
		return last.Oriented()
	}
	return parts[0].Oriented().Flip()
}

// leadingContig is the contig at the 5' end of node u read on strand
func (r *Graph) leadingContig(u int, strand int8) Oriented {
	return r.facingContig(u, -strand).Flip()
}

// RemoveHeteroOverlap deletes the edges that make two heterozygous nodes overlap
// when the overlap index does not know the overlap. Such placements come from the
// two alleles of one locus rather than from adjacent sequences.
func (r *Graph) RemoveHeteroOverlap() int {
	var doomed [][2]int
	var edges []GraphEdge
	for u := range r.Nodes {
		node := &r.Nodes[u]
		if !node.isActive() || node.IsHomo || len(node.Contig) == 0 {
			continue
		}
		for _, e := range node.Edge {
			v := &r.Nodes[e.End]
			if e.End < u || e.Length >= 0 || v.IsHomo || len(v.Contig) == 0 {
				continue
			}
			// Read the pair so that v lies on the 3' side
			a := r.facingContig(u, e.Direction)
			b := r.leadingContig(e.End, e.Strand*e.Direction)
			if r.overlaps.LookupSimilar(a, b, -e.Length) > 0 {
				continue
			}
			doomed = append(doomed, [2]int{u, e.End})
			edges = append(edges, e)
		}
	}
	for i, e := range edges {
		r.deleteEdge(doomed[i][0], e)
	}
	r.Stats.HeteroOverlaps += int64(len(edges))
	log.Noticef("Remove %d overlaps between heterozygous nodes", len(edges))
	return len(edges)
}
