/*
 *  library.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/04/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"fmt"
	"math"
	"sort"
)

// Mate is one read of a pair mapped onto a contig. Pos is the leftmost mapped base
// on the forward strand of the contig (0-based), Len the mapped span.
type Mate struct {
	Contig int
	Pos    int64
	Strand int8
	Len    int64
}

// MappedPair is a read pair as reported by the mapper
type MappedPair struct {
	Mate1, Mate2 Mate
}

// Library is a set of paired reads sharing one insert-size distribution
type Library struct {
	Name          string
	AvgInsert     float64
	SdInsert      float64
	AvgReadLength float64
	AvgCoverage   float64
	Pairs         []MappedPair
}

// String summarizes the library statistics
func (r *Library) String() string {
	return fmt.Sprintf("%s (insert = %.0f +/- %.0f, read = %.0f, cov = %.1f, pairs = %d)",
		r.Name, r.AvgInsert, r.SdInsert, r.AvgReadLength, r.AvgCoverage, len(r.Pairs))
}

// Validate checks that the library statistics are usable
func (r *Library) Validate() error {
	if r.AvgInsert <= 0 || math.IsNaN(r.AvgInsert) {
		return fmt.Errorf("library %s: average insert size must be positive, got %v", r.Name, r.AvgInsert)
	}
	if r.SdInsert < 0 || math.IsNaN(r.SdInsert) {
		return fmt.Errorf("library %s: insert size deviation must be non-negative, got %v", r.Name, r.SdInsert)
	}
	if r.AvgReadLength <= 0 {
		return fmt.Errorf("library %s: read length must be positive, got %v", r.Name, r.AvgReadLength)
	}
	if r.AvgCoverage < 0 {
		return fmt.Errorf("library %s: coverage must be non-negative, got %v", r.Name, r.AvgCoverage)
	}
	return nil
}

// estimateReadLength fills the read length from the mapped spans when missing
func (r *Library) estimateReadLength() {
	if r.AvgReadLength > 0 || len(r.Pairs) == 0 {
		return
	}
	total := int64(0)
	for _, pair := range r.Pairs {
		total += pair.Mate1.Len + pair.Mate2.Len
	}
	r.AvgReadLength = float64(total) / float64(2*len(r.Pairs))
}

// estimateCoverage fills the read coverage (bases of both mates per contig base)
func (r *Library) estimateCoverage(genomeSize int64) {
	if r.AvgCoverage > 0 || genomeSize == 0 {
		return
	}
	r.AvgCoverage = 2 * r.AvgReadLength * float64(len(r.Pairs)) / float64(genomeSize)
}

// Tolerence is the admissible deviation of a gap, 3 sd floored by factor * seedLength
func (r *Library) Tolerence(minTolerenceFactor, seedLength int64) int64 {
	return max64(int64(Round(3*r.SdInsert)), minTolerenceFactor*seedLength)
}

// sortLibraries orders the libraries by ascending insert size, keeping the input order on ties
func sortLibraries(libs []*Library) {
	sort.SliceStable(libs, func(i, j int) bool {
		return libs[i].AvgInsert < libs[j].AvgInsert
	})
}
