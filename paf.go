/*
 *  paf.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/18/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// PafOverhang is the max unaligned overhang at the contig ends of a dovetail
const PafOverhang = 10

// Tag represents the additional info in the 12+ columns in the PAF
// file. The type of the tag is dynamically determined
//
// See also:
// https://github.com/lh3/minimap2/blob/master/minimap2.1
//
// The following tags are used
// Tag	Type	Description
// _
// tp	A	Type of aln: P/primary, S/secondary and I,i/inversion
// NM	i	Total number of mismatches and gaps in the alignment
// dv	f	Approximate per-base sequence divergence
type Tag = interface{}

// PAFRecord holds one line in the PAF file
// The PAF columns:
// https://github.com/lh3/miniasm/blob/master/PAF.md
type PAFRecord struct {
	Query           string         // Query sequence name
	QueryLength     int            // Query sequence length
	QueryStart      int            // Query start (0-based)
	QueryEnd        int            // Query end (0-based)
	RelativeStrand  byte           // `+' if query and target on the same strand; `-' if opposite
	Target          string         // Target sequence name
	TargetLength    int            // Target sequence length
	TargetStart     int            // Target start on original strand (0-based)
	TargetEnd       int            // Target end on original strand (0-based)
	NumMatches      int            // Number of matching bases in the mapping
	AlignmentLength int            // Number bases, including gaps, in the mapping
	MappingQuality  uint8          // Mapping quality (0-255 with 255 for missing)
	Tags            map[string]Tag // Tags, e.g. tp, cm etc.
}

// PAF parses the PAF file into a set of records
type PAF struct {
	PafFile string      // File path of the paf
	Records []PAFRecord // List of PAF records
}

// ParseRecords collects all records in memory
func (r *PAF) ParseRecords() error {
	r.Records = []PAFRecord{}
	fh, err := xopen.Ropen(r.PafFile)
	if errors.Is(err, xopen.ErrNoContent) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open `%s`: %w", r.PafFile, err)
	}
	defer fh.Close()

	log.Noticef("Parse paffile `%s`", r.PafFile)
	reader := bufio.NewReader(fh)
	for {
		row, err := reader.ReadString('\n')
		row = strings.TrimSpace(row)
		if row == "" && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("cannot read `%s`: %w", r.PafFile, err)
		}
		words := strings.Split(row, "\t")
		if len(words) < 12 || len(words[4]) < 1 {
			continue
		}

		// Parse the first 12 columns
		var rec PAFRecord
		rec.Query = words[0]
		rec.QueryLength, _ = strconv.Atoi(words[1])
		rec.QueryStart, _ = strconv.Atoi(words[2])
		rec.QueryEnd, _ = strconv.Atoi(words[3])
		rec.RelativeStrand = words[4][0]
		rec.Target = words[5]
		rec.TargetLength, _ = strconv.Atoi(words[6])
		rec.TargetStart, _ = strconv.Atoi(words[7])
		rec.TargetEnd, _ = strconv.Atoi(words[8])
		rec.NumMatches, _ = strconv.Atoi(words[9])
		rec.AlignmentLength, _ = strconv.Atoi(words[10])
		mappingQuality, _ := strconv.Atoi(words[11])
		rec.MappingQuality = uint8(mappingQuality)
		rec.Tags = map[string]Tag{}
		var tag Tag

		// Parse columns 12+
		for i := 12; i < len(words); i++ {
			tokens := strings.SplitN(words[i], ":", 3)
			if len(tokens) < 3 {
				continue
			}
			tagName := tokens[0]
			value := tokens[2]
			switch tokens[1] {
			case "i":
				tag, _ = strconv.Atoi(value)
			case "f":
				tag, _ = strconv.ParseFloat(value, 32)
			default:
				tag = value
			}
			rec.Tags[tagName] = tag
		}

		r.Records = append(r.Records, rec)
		if err == io.EOF {
			break
		}
	}
	log.Noticef("Imported %d PAF records", len(r.Records))
	return nil
}

// Dovetail converts a record into a suffix/prefix overlap between two contigs,
// false when the alignment does not reach the facing ends
func (r *PAFRecord) Dovetail(contigs *ContigSet) (Overlap, bool) {
	q, okq := contigs.Index(r.Query)
	t, okt := contigs.Index(r.Target)
	if !okq || !okt || q == t {
		return Overlap{}, false
	}
	if tp, ok := r.Tags["tp"].(string); ok && tp != "P" {
		return Overlap{}, false
	}
	if r.AlignmentLength > 0 &&
		float64(r.NumMatches)/float64(r.AlignmentLength) < 1-MaxOverlapIdentityDiff {
		return Overlap{}, false
	}
	qHead := r.QueryStart <= PafOverhang
	qTail := r.QueryLength-r.QueryEnd <= PafOverhang
	tHead := r.TargetStart <= PafOverhang
	tTail := r.TargetLength-r.TargetEnd <= PafOverhang
	qo, to := Oriented{q, 1}, Oriented{t, 1}

	if r.RelativeStrand == '+' {
		switch {
		case qTail && tHead && !qHead:
			return Overlap{qo, to, int64(r.QueryLength - r.QueryStart)}, true
		case tTail && qHead && !tHead:
			return Overlap{to, qo, int64(r.TargetLength - r.TargetStart)}, true
		}
		return Overlap{}, false
	}
	switch {
	case qTail && tTail && !qHead:
		return Overlap{qo, to.Flip(), int64(r.QueryLength - r.QueryStart)}, true
	case qHead && tHead && !tTail:
		return Overlap{to.Flip(), qo, int64(r.TargetEnd)}, true
	}
	return Overlap{}, false
}

// ReadOverlapHints parses the PAF self-alignment of the contigs into overlap
// hints no longer than maxOverlap
func ReadOverlapHints(paffile string, contigs *ContigSet, maxOverlap int64) ([]Overlap, error) {
	paf := PAF{PafFile: paffile}
	if err := paf.ParseRecords(); err != nil {
		return nil, err
	}
	var hints []Overlap
	for i := range paf.Records {
		ov, ok := paf.Records[i].Dovetail(contigs)
		if !ok || (maxOverlap > 0 && ov.Length > maxOverlap) {
			continue
		}
		hints = append(hints, ov)
	}
	log.Noticef("Found %d dovetail overlaps in `%s`", len(hints), paffile)
	return hints, nil
}
