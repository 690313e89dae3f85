/*
 *  aggregate.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/09/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
	"golang.org/x/sync/errgroup"
)

// sortLinks orders links by (Node1, Node2, Strand1, Strand2, Gap)
func sortLinks(links []GraphLink) {
	sort.Slice(links, func(i, j int) bool {
		a, b := &links[i], &links[j]
		if a.Node1 != b.Node1 {
			return a.Node1 < b.Node1
		}
		if a.Node2 != b.Node2 {
			return a.Node2 < b.Node2
		}
		if a.Strand1 != b.Strand1 {
			return a.Strand1 < b.Strand1
		}
		if a.Strand2 != b.Strand2 {
			return a.Strand2 < b.Strand2
		}
		return a.Gap < b.Gap
	})
}

// sameRun tells if two links support the same oriented node pair
func sameRun(a, b *GraphLink) bool {
	return a.Node1 == b.Node1 && a.Node2 == b.Node2 &&
		a.Strand1 == b.Strand1 && a.Strand2 == b.Strand2
}

// EstimateGapSize is the median of the observed gaps (mean of the two central values
// when even), refined by EstimateGapSizeAverage
func EstimateGapSize(gaps []int64, tolerence int64) int64 {
	n := len(gaps)
	if n == 0 {
		return 0
	}
	sorted := make([]int64, n)
	copy(sorted, gaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	med := float64(sorted[n/2])
	if n%2 == 0 {
		med = (float64(sorted[n/2-1]) + med) / 2
	}
	return EstimateGapSizeAverage(sorted, med, tolerence)
}

// EstimateGapSizeAverage is the mean of the gaps within tolerence of the median
func EstimateGapSizeAverage(gaps []int64, median float64, tolerence int64) int64 {
	sum, n := 0.0, 0
	for _, gap := range gaps {
		if abs64(gap-int64(Round(median))) <= tolerence {
			sum += float64(gap)
			n++
		}
	}
	if n == 0 {
		return int64(Round(median))
	}
	return int64(Round(sum / float64(n)))
}

// aggregateBucket scans the runs of sorted links into edges. Only the active library
// counts as support, every library contributes to the breakdown.
func (r *Graph) aggregateBucket(links []GraphLink) []aggregatedEdge {
	var edges []aggregatedEdge
	tolerence := r.tolerence()
	active := uint16(r.active)
	for i := 0; i < len(links); {
		j := i
		var gaps []int64
		breakdown := make([]int64, len(r.libraries))
		for ; j < len(links) && sameRun(&links[i], &links[j]); j++ {
			breakdown[links[j].Library]++
			if links[j].Library == active {
				gaps = append(gaps, int64(links[j].Gap))
			}
		}
		if int64(len(gaps)) >= r.minLink {
			edges = append(edges, aggregatedEdge{
				Node1:     int(links[i].Node1),
				Node2:     int(links[i].Node2),
				Strand1:   links[i].Strand1,
				Strand2:   links[i].Strand2,
				NumLink:   int64(len(gaps)),
				Gap:       EstimateGapSize(gaps, tolerence),
				Breakdown: breakdown,
			})
		}
		i = j
	}
	return edges
}

// aggregateLinks reads the pool bucket by bucket in parallel, the edges come back
// in node order regardless of the scheduling
func (r *Graph) aggregateLinks(ctx context.Context, pool *LinkPool) ([]aggregatedEdge, error) {
	var results [TableDivid][]aggregatedEdge
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.numThread)
	for k := 0; k < TableDivid; k++ {
		k := k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			links, err := pool.ReadBucket(k)
			if err != nil {
				return err
			}
			sortLinks(links)
			results[k] = r.aggregateBucket(links)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var edges []aggregatedEdge
	for k := range results {
		edges = append(edges, results[k]...)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := &edges[i], &edges[j]
		if a.Node1 != b.Node1 {
			return a.Node1 < b.Node1
		}
		if a.Node2 != b.Node2 {
			return a.Node2 < b.Node2
		}
		if a.Strand1 != b.Strand1 {
			return a.Strand1 < b.Strand1
		}
		return a.Strand2 < b.Strand2
	})
	log.Noticef("Aggregated links into %d edges with at least %d links", len(edges), r.minLink)
	return edges, nil
}

// WriteEdges dumps the edges of the graph in a CLM-like table, one line per
// adjacency:
//
// ctg1+ ctg2-	12	-35	12,4
func (r *Graph) WriteEdges(filename string) error {
	w, err := xopen.Wopen(filename)
	if err != nil {
		return fmt.Errorf("cannot write edges `%s`: %w", filename, err)
	}
	defer w.Close()

	for u := range r.Nodes {
		for _, e := range r.Nodes[u].Edge {
			if e.End < u {
				continue
			}
			// Print the pair in the fragment frame: u leads when the edge leaves its 3' end
			a, b := r.nodeName(u), r.nodeName(e.End)
			ao, bo := byte('+'), strandChar(e.Strand)
			if e.Direction < 0 {
				ao, bo = '-', strandChar(-e.Strand)
			}
			counts := make([]string, len(e.Breakdown))
			for i, c := range e.Breakdown {
				counts[i] = strconv.FormatInt(c, 10)
			}
			fmt.Fprintf(w, "%s%c %s%c\t%d\t%d\t%s\n", a, ao, b, bo,
				e.NumLink, e.Length, strings.Join(counts, ","))
		}
	}
	log.Noticef("Edges written to `%s`", filename)
	return nil
}

// EdgeLine is one parsed line of the edge table
type EdgeLine struct {
	A, B      string
	AO, BO    byte
	NumLink   int64
	Gap       int64
	Breakdown []int64
}

// ParseEdges reads back the table written by WriteEdges
func ParseEdges(filename string) ([]EdgeLine, error) {
	fh, err := xopen.Ropen(filename)
	if errors.Is(err, xopen.ErrNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open `%s`: %w", filename, err)
	}
	defer fh.Close()

	var lines []EdgeLine
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		words := strings.Split(scanner.Text(), "\t")
		if len(words) < 3 {
			continue
		}
		tigs := strings.Fields(words[0])
		if len(tigs) != 2 || len(tigs[0]) < 2 || len(tigs[1]) < 2 {
			return nil, fmt.Errorf("malformed edge line `%s`", scanner.Text())
		}
		line := EdgeLine{
			A:  tigs[0][:len(tigs[0])-1],
			AO: tigs[0][len(tigs[0])-1],
			B:  tigs[1][:len(tigs[1])-1],
			BO: tigs[1][len(tigs[1])-1],
		}
		if line.NumLink, err = strconv.ParseInt(words[1], 10, 64); err != nil {
			return nil, fmt.Errorf("malformed edge line `%s`: %w", scanner.Text(), err)
		}
		if line.Gap, err = strconv.ParseInt(words[2], 10, 64); err != nil {
			return nil, fmt.Errorf("malformed edge line `%s`: %w", scanner.Text(), err)
		}
		if len(words) > 3 && words[3] != "" {
			for _, c := range strings.Split(words[3], ",") {
				count, err := strconv.ParseInt(c, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("malformed edge line `%s`: %w", scanner.Text(), err)
				}
				line.Breakdown = append(line.Breakdown, count)
			}
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
