/*
 *  scaffolder.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/19/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"fmt"
	"path/filepath"
)

// Scaffolder runs the scaffolding pipeline, one round per library in ascending
// insert size
type Scaffolder struct {
	Config    Config
	Contigs   *ContigSet
	Libraries []*Library
	Hints     []Overlap
	Overlaps  *OverlapIndex
	Graph     *Graph
	Scaffolds []Scaffold
}

// LoadInputs reads the contigs, the mapped pairs of each library and the overlap
// hints named in the config
func (r *Scaffolder) LoadInputs() error {
	c := &r.Config
	if c.Contigs == "" {
		return fmt.Errorf("no contig file given")
	}
	contigs, err := ReadContigs(c.Contigs)
	if err != nil {
		return err
	}
	r.Contigs = contigs

	for i, lc := range c.Libraries {
		lib := &Library{
			Name:          lc.Name,
			AvgInsert:     lc.AvgInsert,
			SdInsert:      lc.SdInsert,
			AvgReadLength: lc.ReadLength,
			AvgCoverage:   lc.Coverage,
		}
		if lib.Name == "" {
			lib.Name = fmt.Sprintf("lib%d", i+1)
		}
		if lc.Bam != "" {
			lib.Pairs, err = ReadBamPairs(lc.Bam, contigs, c.Progress)
		} else {
			lib.Pairs, err = ReadPairsFile(lc.Pairs, contigs)
		}
		if err != nil {
			return err
		}
		r.Libraries = append(r.Libraries, lib)
	}

	if c.Paf != "" {
		r.Hints, err = ReadOverlapHints(c.Paf, contigs, c.MaxOverlap)
		if err != nil {
			return err
		}
	}
	return nil
}

// prepareLibraries fills the missing library statistics and checks them. Libraries
// without any mapped pair take no round.
func (r *Scaffolder) prepareLibraries() error {
	genomeSize := r.Contigs.TotalLength()
	libraries := r.Libraries[:0]
	for _, lib := range r.Libraries {
		if len(lib.Pairs) == 0 {
			log.Warningf("Library %s has no mapped pairs, skipped", lib.Name)
			continue
		}
		libraries = append(libraries, lib)
	}
	r.Libraries = libraries
	for _, lib := range r.Libraries {
		model, err := EstimateInsertSize(lib)
		if err != nil {
			return err
		}
		if model != nil {
			prefix := r.Config.OutPrefix + "_" + filepath.Base(lib.Name)
			if err := model.WriteFiles(prefix, false); err != nil {
				return err
			}
		}
		lib.estimateCoverage(genomeSize)
		if err := lib.Validate(); err != nil {
			return err
		}
		log.Noticef("Library %s", lib)
	}
	return nil
}

// EstimateContigCoverage sets the coverage of each contig from the mapped bases of
// all libraries, used when the contig names carry no coverage
func EstimateContigCoverage(contigs *ContigSet, libraries []*Library) {
	bases := make([]int64, contigs.Len())
	for _, lib := range libraries {
		for _, pair := range lib.Pairs {
			bases[pair.Mate1.Contig] += pair.Mate1.Len
			bases[pair.Mate2.Contig] += pair.Mate2.Len
		}
	}
	for i := range contigs.Contigs {
		if length := contigs.Length(i); length > 0 {
			contigs.Contigs[i].Coverage = clampCoverage(float64(bases[i]) / float64(length))
		}
	}
	log.Noticef("Estimated contig coverage from mapped reads, average %.1f", contigs.AverageCoverage())
}

// edgeFileName puts the round number in the edge file name
func edgeFileName(filename string, round int) string {
	return fmt.Sprintf("%s.round%d%s", RemoveExt(filename), round+1, filepath.Ext(filename))
}

// runRound cleans and merges the graph with the k-th library
func (r *Scaffolder) runRound(ctx context.Context, k int) error {
	c := &r.Config
	g := r.Graph
	banner(fmt.Sprintf("Round %d: %s", k+1, r.Libraries[k].Name))

	g.InitScaffolding(k)
	edges, err := g.CalcLink(ctx)
	if err != nil {
		return err
	}
	g.MakeGraph(edges)
	if c.EdgeFile != "" {
		if err := g.WriteEdges(edgeFileName(c.EdgeFile, k)); err != nil {
			return err
		}
	}

	g.ClassifyNode()
	g.DetectRepeat()
	g.DeleteRepeatEdge()
	if _, err := g.DeleteErroneousEdgeIterative(ctx); err != nil {
		return err
	}
	g.DeleteHeteroEdge()
	g.RemoveHeteroOverlap()
	if c.CrushBubble {
		if _, err := g.CrushHeteroBubble(ctx); err != nil {
			return err
		}
		if _, err := g.CrushBubbleIterative(ctx); err != nil {
			return err
		}
	}
	g.Split()
	g.CheckInvariants()
	if c.DotFile != "" && k == len(r.Libraries)-1 {
		if err := g.WriteDot(c.DotFile); err != nil {
			return err
		}
	}

	g.MakeScaffold()
	g.CheckInvariants()
	_, err = g.SplitLowCoverageLink(ctx)
	return err
}

// Run kicks off the scaffolding
func (r *Scaffolder) Run(ctx context.Context) error {
	c := &r.Config
	if err := c.Validate(); err != nil {
		return err
	}
	if r.Contigs == nil {
		banner("Load inputs")
		if err := r.LoadInputs(); err != nil {
			return err
		}
	}
	if !r.Contigs.HasCoverage() && c.AverageCoverage == 0 && len(r.Libraries) > 0 {
		EstimateContigCoverage(r.Contigs, r.Libraries)
	}
	if err := r.prepareLibraries(); err != nil {
		return err
	}

	if r.Overlaps == nil {
		r.Overlaps = NewOverlapIndex()
		if err := r.Overlaps.SaveOverlap(ctx, r.Contigs, r.Hints,
			c.MinOverlap, c.MaxOverlap, c.NumThread); err != nil {
			return err
		}
	}
	r.Graph = NewGraph(r.Contigs, r.Libraries, r.Overlaps, c)
	if len(r.Libraries) == 0 {
		log.Noticef("No libraries, contigs are written as they are")
	}
	for k := range r.Libraries {
		if err := r.runRound(ctx, k); err != nil {
			return err
		}
	}

	banner("Output")
	scaffolds, err := r.Graph.CutAndPrintSeq(c.OutPrefix, c.MinSeqLength)
	if err != nil {
		return err
	}
	r.Scaffolds = scaffolds
	if err := r.Graph.PrintScaffoldBubble(c.OutPrefix); err != nil {
		return err
	}
	r.logStats()
	log.Notice("Success")
	return nil
}

// logStats reports the counters of the whole run
func (r *Scaffolder) logStats() {
	s := &r.Graph.Stats
	log.Noticef("Pairs: %d, links: %d, same node: %d, out of range: %d, unplaced: %d",
		s.Pairs, s.Links, s.SameNodePairs, s.OutOfRangeLinks, s.UnplacedPairs)
	log.Noticef("Repeats: %d nodes (%d edges), erroneous edges: %d, cross-allelic edges: %d, hetero overlaps: %d",
		s.RepeatNodes, s.RepeatEdges, s.ErroneousEdges, s.HeteroEdges, s.HeteroOverlaps)
	log.Noticef("Bubbles: %d, conflicting edges: %d, merges: %d, low coverage cuts: %d, erroneous pairs: %d",
		s.Bubbles, s.ConflictingEdges, s.Merges, s.LowCoverageCuts, s.ErroneousPairs)
}
