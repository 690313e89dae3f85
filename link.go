/*
 *  link.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/08/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// linkBatchSize is the number of pairs a worker converts before spilling
const linkBatchSize = 1 << 16

// linkStatus is the outcome of turning a mapped pair into a link
type linkStatus int

const (
	linkOK linkStatus = iota
	linkUnplaced
	linkSameNode
	linkOutOfRange
)

// libTolerence is the admissible gap deviation with the k-th library
func (r *Graph) libTolerence(k int) int64 {
	if r.minTolerence > 0 {
		return r.minTolerence
	}
	return r.libraries[k].Tolerence(r.tolerenceFactor, r.seedLength)
}

// liftMate moves a mate from contig to node coordinates
func (r *Graph) liftMate(m *Mate) (node int, pos int64, strand int8, ok bool) {
	if m.Contig < 0 || m.Contig >= len(r.position) {
		return 0, 0, 0, false
	}
	p := r.position[m.Contig]
	if p.Node < 0 {
		return 0, 0, 0, false
	}
	if p.Strand > 0 {
		return p.Node, p.Offset + m.Pos, m.Strand, true
	}
	length := r.contigs.Length(m.Contig)
	return p.Node, p.Offset + length - m.Pos - m.Len, -m.Strand, true
}

// makeLink derives the link implied by a read pair of the k-th library. Mate 1 fixes
// the orientation of its node, mate 2 reads back towards it.
func (r *Graph) makeLink(pair *MappedPair, k int, minGap, maxGap int64) (GraphLink, linkStatus) {
	n1, p1, s1, ok1 := r.liftMate(&pair.Mate1)
	n2, p2, s2, ok2 := r.liftMate(&pair.Mate2)
	if !ok1 || !ok2 {
		return GraphLink{}, linkUnplaced
	}
	if n1 == n2 {
		return GraphLink{}, linkSameNode
	}
	l1 := r.Nodes[n1].Length
	l2 := r.Nodes[n2].Length

	var dist1, dist2 int64
	if s1 > 0 {
		dist1 = l1 - p1
	} else {
		dist1 = p1 + pair.Mate1.Len
	}
	if s2 < 0 {
		dist2 = p2 + pair.Mate2.Len
	} else {
		dist2 = l2 - p2
	}
	gap := int64(Round(r.libraries[k].AvgInsert)) - dist1 - dist2
	if gap < minGap || gap > maxGap {
		return GraphLink{}, linkOutOfRange
	}
	return GraphLink{
		Node1:   int32(n1),
		Node2:   int32(n2),
		Strand1: s1,
		Strand2: -s2,
		Library: uint16(k),
		Offset1: int32(dist1),
		Offset2: int32(dist2),
		Gap:     int32(gap),
	}, linkOK
}

// collectLinks converts the pairs of the k-th library into links spilled to the pool
func (r *Graph) collectLinks(ctx context.Context, pool *LinkPool, k int) error {
	lib := r.libraries[k]
	// Overlaps up to maxOverlap, measured with the gap deviation of the library
	minGap := -(r.maxOverlap + r.libTolerence(k))
	maxGap := int64(Round(lib.AvgInsert + 3*lib.SdInsert))

	var unplaced, sameNode, outOfRange, nLinks int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.numThread)
	for start := 0; start < len(lib.Pairs); start += linkBatchSize {
		start := start
		end := start + linkBatchSize
		if end > len(lib.Pairs) {
			end = len(lib.Pairs)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var links []GraphLink
			var counts [4]int64
			for i := start; i < end; i++ {
				link, status := r.makeLink(&lib.Pairs[i], k, minGap, maxGap)
				counts[status]++
				if status == linkOK {
					links = append(links, link)
				}
			}
			atomic.AddInt64(&nLinks, counts[linkOK])
			atomic.AddInt64(&unplaced, counts[linkUnplaced])
			atomic.AddInt64(&sameNode, counts[linkSameNode])
			atomic.AddInt64(&outOfRange, counts[linkOutOfRange])
			return pool.Add(links)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.Stats.Pairs += int64(len(lib.Pairs))
	r.Stats.Links += nLinks
	r.Stats.UnplacedPairs += unplaced
	r.Stats.SameNodePairs += sameNode
	r.Stats.OutOfRangeLinks += outOfRange
	log.Noticef("Library %s: %s pairs make links (%d same node, %d out of range, %d unplaced)",
		lib.Name, Percentage(int(nLinks), len(lib.Pairs)), sameNode, outOfRange, unplaced)
	return nil
}

// CalcLink collects the links of the active library and all the longer ones, then
// aggregates them into edges. Longer libraries only contribute to the breakdown.
func (r *Graph) CalcLink(ctx context.Context) ([]aggregatedEdge, error) {
	pool, err := NewLinkPool(r.tmpDir)
	if err != nil {
		return nil, err
	}
	defer pool.Remove()

	for k := r.active; k < len(r.libraries); k++ {
		if err := r.collectLinks(ctx, pool, k); err != nil {
			return nil, err
		}
	}
	if err := pool.Close(); err != nil {
		return nil, err
	}
	return r.aggregateLinks(ctx, pool)
}
