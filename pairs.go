/*
 *  pairs.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/17/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// The pairs file has one mapped pair per line, positions are 0-based leftmost
// mapped bases and lengths the mapped spans:
//
// #contig1	pos1	strand1	len1	contig2	pos2	strand2	len2
// ctg1	120	+	100	ctg2	380	-	100

// parseStrand reads + or -
func parseStrand(s string) (int8, error) {
	switch s {
	case "+":
		return 1, nil
	case "-":
		return -1, nil
	}
	return 0, fmt.Errorf("bad strand `%s`", s)
}

// parseMate reads the four columns of a mate
func parseMate(contigs *ContigSet, words []string) (Mate, bool, error) {
	var m Mate
	idx, ok := contigs.Index(words[0])
	if !ok {
		return m, false, nil
	}
	pos, err := strconv.ParseInt(words[1], 10, 64)
	if err != nil {
		return m, false, err
	}
	strand, err := parseStrand(words[2])
	if err != nil {
		return m, false, err
	}
	length, err := strconv.ParseInt(words[3], 10, 64)
	if err != nil {
		return m, false, err
	}
	return Mate{idx, pos, strand, length}, true, nil
}

// ReadPairsFile parses a pairs file, pairs on unknown contigs are skipped. An empty
// file holds no pairs.
func ReadPairsFile(filename string, contigs *ContigSet) ([]MappedPair, error) {
	fh, err := xopen.Ropen(filename)
	if errors.Is(err, xopen.ErrNoContent) {
		log.Warningf("Pairs file `%s` is empty", filename)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open `%s`: %w", filename, err)
	}
	defer fh.Close()

	log.Noticef("Parse pairs file `%s`", filename)
	var pairs []MappedPair
	skipped := 0
	scanner := bufio.NewScanner(fh)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || row[0] == '#' {
			continue
		}
		words := strings.Fields(row)
		if len(words) < 8 {
			return nil, fmt.Errorf("%s:%d: expected 8 columns, got %d", filename, lineNo, len(words))
		}
		m1, ok1, err := parseMate(contigs, words[:4])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		m2, ok2, err := parseMate(contigs, words[4:8])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		if !ok1 || !ok2 {
			skipped++
			continue
		}
		pairs = append(pairs, MappedPair{m1, m2})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read `%s`: %w", filename, err)
	}
	log.Noticef("Imported %d pairs (%d on unknown contigs)", len(pairs), skipped)
	return pairs, nil
}

// WritePairsFile saves mapped pairs in the pairs format
func WritePairsFile(filename string, pairs []MappedPair, contigs *ContigSet) error {
	w, err := xopen.Wopen(filename)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	defer w.Close()
	fmt.Fprintf(w, "#contig1\tpos1\tstrand1\tlen1\tcontig2\tpos2\tstrand2\tlen2\n")
	for _, pair := range pairs {
		m1, m2 := pair.Mate1, pair.Mate2
		fmt.Fprintf(w, "%s\t%d\t%c\t%d\t%s\t%d\t%c\t%d\n",
			contigs.Contigs[m1.Contig].Name, m1.Pos, strandChar(m1.Strand), m1.Len,
			contigs.Contigs[m2.Contig].Name, m2.Pos, strandChar(m2.Strand), m2.Len)
	}
	log.Noticef("A total of %d pairs written to `%s`", len(pairs), filename)
	return nil
}
