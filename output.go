/**
 * Filename: /Users/bao/code/scaffolder/output.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Sunday, March 15th 2020, 10:21:08 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

import (
	"fmt"
	"math"
	"sort"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/xopen"
)

// Scaffold is a finished sequence with the placements of its contigs
type Scaffold struct {
	Name     string
	Seq      []byte
	Parts    []ScaffoldPart
	Coverage float64
}

// Scaffolds lays out every remaining node at least minSeqLength long. Longer
// scaffolds come first, ties in the order of their first contig.
func (r *Graph) Scaffolds(minSeqLength int64) []Scaffold {
	var scaffolds []Scaffold
	for u := range r.Nodes {
		if !r.Nodes[u].isActive() || len(r.Nodes[u].Contig) == 0 {
			continue
		}
		s, parts := r.Layout2Seq(u)
		if int64(len(s)) < minSeqLength {
			continue
		}
		scaffolds = append(scaffolds, Scaffold{
			Seq:      s,
			Parts:    parts,
			Coverage: r.LayoutAverageCoverage(parts),
		})
	}
	sort.SliceStable(scaffolds, func(i, j int) bool {
		if len(scaffolds[i].Seq) != len(scaffolds[j].Seq) {
			return len(scaffolds[i].Seq) > len(scaffolds[j].Seq)
		}
		return firstContig(scaffolds[i].Parts) < firstContig(scaffolds[j].Parts)
	})
	for i := range scaffolds {
		scaffolds[i].Name = fmt.Sprintf("scaffold%d", i+1)
	}
	return scaffolds
}

// LayoutAverageCoverage is the mean coverage over the bases of a layout. Each base
// is counted once, for the first part covering it.
func (r *Graph) LayoutAverageCoverage(parts []ScaffoldPart) float64 {
	sorted := make([]ScaffoldPart, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	sum, total := 0.0, int64(0)
	covered := int64(math.MinInt64)
	for _, part := range sorted {
		bases := part.End - max64(part.Start, covered)
		if bases <= 0 {
			continue
		}
		sum += float64(r.contigs.Contigs[part.Contig].Coverage) * float64(bases)
		total += bases
		covered = part.End
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

// firstContig is the smallest contig index in the parts
func firstContig(parts []ScaffoldPart) int {
	first := -1
	for _, part := range parts {
		if first < 0 || part.Contig < first {
			first = part.Contig
		}
	}
	return first
}

// writeFastaRecord writes one record wrapped at FastaLineWidth
func writeFastaRecord(w *xopen.Writer, header string, s []byte) error {
	if _, err := fmt.Fprintf(w, ">%s\n", header); err != nil {
		return err
	}
	if len(s) == 0 {
		_, err := w.WriteString("\n")
		return err
	}
	record, err := seq.NewSeqWithoutValidation(seq.DNAredundant, s)
	if err != nil {
		return err
	}
	if _, err := w.Write(record.FormatSeq(FastaLineWidth)); err != nil {
		return err
	}
	_, err = w.WriteString("\n")
	return err
}

// CutAndPrintSeq writes the scaffolds as FASTA, their components as a table and
// an AGP file
func (r *Graph) CutAndPrintSeq(prefix string, minSeqLength int64) ([]Scaffold, error) {
	scaffolds := r.Scaffolds(minSeqLength)
	fastafile := prefix + "_scaffold.fa"
	w, err := xopen.Wopen(fastafile)
	if err != nil {
		return nil, fmt.Errorf("cannot write `%s`: %w", fastafile, err)
	}
	total := int64(0)
	for _, s := range scaffolds {
		header := fmt.Sprintf("%s len=%d cov=%.1f", s.Name, len(s.Seq), s.Coverage)
		if err := writeFastaRecord(w, header, s.Seq); err != nil {
			w.Close()
			return nil, fmt.Errorf("cannot write `%s`: %w", fastafile, err)
		}
		total += int64(len(s.Seq))
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cannot write `%s`: %w", fastafile, err)
	}
	log.Noticef("A total of %d scaffolds (%d bp) written to `%s`", len(scaffolds), total, fastafile)

	if err := r.WriteComponents(prefix+"_scaffoldComponent.tsv", scaffolds); err != nil {
		return nil, err
	}
	if err := r.WriteAGP(prefix+"_scaffold.agp", scaffolds); err != nil {
		return nil, err
	}
	return scaffolds, nil
}

// WriteComponents lists the contigs of each scaffold, with 0-based half-open
// coordinates
func (r *Graph) WriteComponents(filename string, scaffolds []Scaffold) error {
	w, err := xopen.Wopen(filename)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	defer w.Close()
	fmt.Fprintf(w, "#scaffoldId\tcontigId\tstrand\tstart\tend\n")
	components := 0
	for _, s := range scaffolds {
		for _, part := range s.Parts {
			fmt.Fprintf(w, "%s\t%s\t%c\t%d\t%d\n", s.Name, r.contigs.Contigs[part.Contig].Name,
				strandChar(part.Strand), part.Start, part.End)
			components++
		}
	}
	log.Noticef("A total of %d components written to `%s`", components, filename)
	return nil
}

// WriteAGP converts the scaffold components into AGP format. Overlapping
// components are trimmed on their left end.
func (r *Graph) WriteAGP(filename string, scaffolds []Scaffold) error {
	gapType := "scaffold"
	linkage := "yes"
	evidence := "paired-ends"

	w, err := xopen.Wopen(filename)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	defer w.Close()
	components := 0

	// Write AGP for each object group
	for _, s := range scaffolds {
		partNumber := 0
		prevEnd := int64(0)
		for _, part := range s.Parts {
			if part.Start > prevEnd {
				gapSize := part.Start - prevEnd
				componentType := 'N'
				if gapSize == 100 {
					componentType = 'U'
				}
				partNumber++
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%c\t%d\t%s\t%s\t%s\n",
					s.Name, prevEnd+1, part.Start, partNumber,
					componentType, gapSize, gapType, linkage, evidence)
			}
			objectBeg := max64(part.Start, prevEnd)
			if objectBeg >= part.End {
				continue
			}
			trim := objectBeg - part.Start
			componentSize := part.End - part.Start
			componentBeg, componentEnd := 1+trim, componentSize
			if part.Strand < 0 {
				componentBeg, componentEnd = 1, componentSize-trim
			}
			partNumber++
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%c\t%s\t%d\t%d\t%c\n",
				s.Name, objectBeg+1, part.End, partNumber,
				'W', r.contigs.Contigs[part.Contig].Name, componentBeg, componentEnd,
				strandChar(part.Strand))
			prevEnd = part.End
			components++
		}
	}
	log.Noticef("A total of %d tigs written to `%s`", components, filename)
	return nil
}

// PrintScaffoldBubble writes the crushed bubble arms
func (r *Graph) PrintScaffoldBubble(prefix string) error {
	filename := prefix + "_scaffoldBubble.fa"
	w, err := xopen.Wopen(filename)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	for i, b := range r.bubbles {
		header := fmt.Sprintf("bubble%d %s len=%d", i+1, b.Name, len(b.Seq))
		if err := writeFastaRecord(w, header, b.Seq); err != nil {
			w.Close()
			return fmt.Errorf("cannot write `%s`: %w", filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	log.Noticef("A total of %d bubbles written to `%s`", len(r.bubbles), filename)
	return nil
}
