/*
 *  contig.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/04/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// Contig is a gapless sequence from the contig assembly, immutable once loaded
type Contig struct {
	Name     string
	Seq      []byte
	Coverage uint16
}

// ContigSet holds all the contigs, addressed by a dense 0-based index
type ContigSet struct {
	Contigs   []Contig
	nameToIdx map[string]int
}

// Oriented is one strand of a contig, Strand is +1 (forward) or -1 (reverse complement)
type Oriented struct {
	ID     int
	Strand int8
}

// Flip returns the other strand of the same contig
func (r Oriented) Flip() Oriented {
	return Oriented{r.ID, -r.Strand}
}

// String prints the contig index with its strand, e.g. 12+
func (r Oriented) String() string {
	return fmt.Sprintf("%d%c", r.ID, strandChar(r.Strand))
}

// Platanus style names carry coverage: scaffold1_len1000_cov30
var covInName = regexp.MustCompile(`_cov([0-9]+(\.[0-9]+)?)`)

// NewContigSet builds the set from contigs already in memory
func NewContigSet(contigs []Contig) *ContigSet {
	r := &ContigSet{Contigs: contigs, nameToIdx: map[string]int{}}
	for i, contig := range contigs {
		r.nameToIdx[contig.Name] = i
	}
	return r
}

// ReadContigs parses the contig FASTA file. Coverage is taken from `_covNN` in the
// name or `cov=NN` in the description, 0 when absent.
func ReadContigs(fastafile string) (*ContigSet, error) {
	log.Noticef("Parse contig file `%s`", fastafile)
	reader, err := fastx.NewDefaultReader(fastafile)
	if errors.Is(err, xopen.ErrNoContent) {
		log.Warningf("Contig file `%s` is empty", fastafile)
		return NewContigSet(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open `%s`: %w", fastafile, err)
	}
	seq.ValidateSeq = false // This flag makes parsing FASTA much faster

	var contigs []Contig
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed FASTA `%s`: %w", fastafile, err)
		}
		words := strings.Fields(string(rec.Name))
		if len(words) == 0 {
			return nil, fmt.Errorf("record without name in `%s`", fastafile)
		}
		s := make([]byte, len(rec.Seq.Seq))
		copy(s, rec.Seq.Seq)
		contigs = append(contigs, Contig{
			Name:     words[0],
			Seq:      normalizeBases(s),
			Coverage: parseCoverage(words),
		})
	}
	set := NewContigSet(contigs)
	log.Noticef("Imported %d contigs (total %d bp)", set.Len(), set.TotalLength())
	return set, nil
}

// parseCoverage extracts the coverage from the header words
func parseCoverage(words []string) uint16 {
	var cov float64
	if m := covInName.FindStringSubmatch(words[0]); m != nil {
		cov, _ = strconv.ParseFloat(m[1], 64)
	}
	for _, word := range words[1:] {
		if strings.HasPrefix(word, "cov=") {
			cov, _ = strconv.ParseFloat(word[4:], 64)
		}
	}
	return clampCoverage(cov)
}

// clampCoverage rounds a coverage into the 16-bit range
func clampCoverage(cov float64) uint16 {
	cov = Round(cov)
	if cov < 0 {
		return 0
	}
	if cov > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(cov)
}

// normalizeBases upper-cases and maps anything outside ACGT to N
func normalizeBases(s []byte) []byte {
	for i, b := range s {
		switch b {
		case 'A', 'C', 'G', 'T':
		case 'a', 'c', 'g', 't':
			s[i] = b - 'a' + 'A'
		default:
			s[i] = 'N'
		}
	}
	return s
}

// Len returns the number of contigs
func (r *ContigSet) Len() int {
	return len(r.Contigs)
}

// Index returns the index of the contig name
func (r *ContigSet) Index(name string) (int, bool) {
	idx, ok := r.nameToIdx[name]
	return idx, ok
}

// Length returns the length of the i-th contig
func (r *ContigSet) Length(i int) int64 {
	return int64(len(r.Contigs[i].Seq))
}

// TotalLength returns the sum of all contig lengths
func (r *ContigSet) TotalLength() int64 {
	total := int64(0)
	for _, contig := range r.Contigs {
		total += int64(len(contig.Seq))
	}
	return total
}

// OrientedSeq returns the contig sequence in the given orientation, the forward
// strand is returned without copying and must not be modified
func (r *ContigSet) OrientedSeq(o Oriented) []byte {
	s := r.Contigs[o.ID].Seq
	if o.Strand > 0 {
		return s
	}
	return reverseComplement(s)
}

// AverageCoverage is the length-weighted mean coverage of all contigs
func (r *ContigSet) AverageCoverage() float64 {
	sum, total := 0.0, 0.0
	for _, contig := range r.Contigs {
		sum += float64(contig.Coverage) * float64(len(contig.Seq))
		total += float64(len(contig.Seq))
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// HasCoverage tells if any contig carries a coverage value
func (r *ContigSet) HasCoverage() bool {
	for _, contig := range r.Contigs {
		if contig.Coverage > 0 {
			return true
		}
	}
	return false
}

// reverseComplement returns a reverse-complemented copy of a DNA sequence
func reverseComplement(s []byte) []byte {
	cp := make([]byte, len(s))
	copy(cp, s)
	rc, err := seq.NewSeqWithoutValidation(seq.DNAredundant, cp)
	if err != nil {
		log.Errorf("Cannot reverse complement: %v", err)
		return cp
	}
	return rc.RevComInplace().Seq
}
