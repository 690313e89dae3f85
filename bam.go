/*
 *  bam.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/17/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"fmt"
	"io"
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/cheggaaa/pb/v3"
)

// BamFilterFlags are Unmapped | Secondary | QCFail | Duplicate | Supplementary
const BamFilterFlags = 3844

// mateOf converts a BAM record into a mate, false when the record is filtered out
func mateOf(contigs *ContigSet, rec *sam.Record) (Mate, bool) {
	if rec.MapQ == 0 || rec.Flags&BamFilterFlags != 0 || rec.Flags&sam.Paired == 0 {
		return Mate{}, false
	}
	if rec.Ref == nil {
		return Mate{}, false
	}
	idx, ok := contigs.Index(rec.Ref.Name())
	if !ok {
		return Mate{}, false
	}
	strand := int8(1)
	if rec.Flags&sam.Reverse != 0 {
		strand = -1
	}
	return Mate{Contig: idx, Pos: int64(rec.Pos), Strand: strand, Len: int64(rec.Len())}, true
}

// ReadBamPairs parses the mapped pairs of a name-sorted or coordinate-sorted BAM.
// Mates are matched by read name, read 1 becomes Mate1.
func ReadBamPairs(bamfile string, contigs *ContigSet, progress bool) ([]MappedPair, error) {
	fh, err := os.Open(bamfile)
	if err != nil {
		return nil, fmt.Errorf("cannot open `%s`: %w", bamfile, err)
	}
	defer fh.Close()

	log.Noticef("Parse bamfile `%s`", bamfile)
	var reader io.Reader = fh
	if progress {
		if info, err := fh.Stat(); err == nil {
			bar := pb.Full.Start64(info.Size())
			bar.Set(pb.Bytes, true)
			defer bar.Finish()
			reader = bar.NewProxyReader(fh)
		}
	}
	br, err := bam.NewReader(reader, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open bamfile `%s`: %w", bamfile, err)
	}
	defer br.Close()

	for _, ref := range br.Header().Refs() {
		// Sanity check to see if the contig length match up between the bam and fasta
		idx, ok := contigs.Index(ref.Name())
		if ok && contigs.Length(idx) != int64(ref.Len()) {
			log.Errorf("Length mismatch: %s (fasta: %d bam:%d)",
				ref.Name(), contigs.Length(idx), ref.Len())
		}
	}

	var pairs []MappedPair
	pending := map[string]Mate{}
	pendingRead1 := map[string]bool{}
	nRecords := 0
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed bamfile `%s`: %w", bamfile, err)
		}
		nRecords++
		mate, ok := mateOf(contigs, rec)
		if !ok {
			continue
		}
		isRead1 := rec.Flags&sam.Read1 != 0
		other, found := pending[rec.Name]
		if !found {
			pending[rec.Name] = mate
			pendingRead1[rec.Name] = isRead1
			continue
		}
		if pendingRead1[rec.Name] {
			pairs = append(pairs, MappedPair{other, mate})
		} else {
			pairs = append(pairs, MappedPair{mate, other})
		}
		delete(pending, rec.Name)
		delete(pendingRead1, rec.Name)
	}
	log.Noticef("Imported %d pairs from %d records (%d mates without partner)",
		len(pairs), nRecords, len(pending))
	return pairs, nil
}
