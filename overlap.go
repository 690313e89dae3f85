/*
 *  overlap.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/06/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/errgroup"
)

// Overlap is a suffix/prefix overlap: the end of A (as oriented) overlaps the start
// of B (as oriented) by Length bases
type Overlap struct {
	A, B   Oriented
	Length int64
}

// overlapShard is one partition of the overlap table, the lock is only taken while
// the table is built
type overlapShard struct {
	sync.Mutex
	table map[[2]int64]int64
}

// OverlapIndex maps oriented contig pairs to their overlap length, sharded by hash
type OverlapIndex struct {
	shards [TableDivid]overlapShard
}

// NewOverlapIndex makes an empty index
func NewOverlapIndex() *OverlapIndex {
	r := new(OverlapIndex)
	for i := range r.shards {
		r.shards[i].table = make(map[[2]int64]int64)
	}
	return r
}

// signedID packs an oriented contig into a 1-based signed id
func signedID(o Oriented) int64 {
	return int64(o.ID+1) * int64(o.Strand)
}

// overlapKey canonicalizes (a, b): the same overlap seen from the other strand is
// (-b, -a), the lexicographically smaller of the two is the key
func overlapKey(a, b Oriented) [2]int64 {
	x, y := signedID(a), signedID(b)
	rx, ry := -y, -x
	if rx < x || (rx == x && ry < y) {
		return [2]int64{rx, ry}
	}
	return [2]int64{x, y}
}

// decideTableID picks the shard from the low bits of the key hash
func decideTableID(key [2]int64) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(key[0]))
	binary.LittleEndian.PutUint64(buf[8:], uint64(key[1]))
	return int(xxhash.Sum64(buf[:]) & (TableDivid - 1))
}

// Record inserts an overlap, keeping the maximum length on collision. Safe for
// concurrent use.
func (r *OverlapIndex) Record(a, b Oriented, length int64) {
	if length <= 0 || a.ID == b.ID {
		return
	}
	key := overlapKey(a, b)
	shard := &r.shards[decideTableID(key)]
	shard.Lock()
	if length > shard.table[key] {
		shard.table[key] = length
	}
	shard.Unlock()
}

// Lookup returns the overlap length between a and b, 0 if absent. Must not run
// concurrently with Record.
func (r *OverlapIndex) Lookup(a, b Oriented) int64 {
	key := overlapKey(a, b)
	return r.shards[decideTableID(key)].table[key]
}

// LookupSimilar returns the overlap if it is within MaxOverlapIdentityDiff of the
// expected overlap, 0 otherwise
func (r *OverlapIndex) LookupSimilar(a, b Oriented, expected int64) int64 {
	length := r.Lookup(a, b)
	if length == 0 || expected <= 0 {
		return 0
	}
	if float64(abs64(length-expected))/float64(expected) <= MaxOverlapIdentityDiff {
		return length
	}
	return 0
}

// Len returns the number of overlaps stored
func (r *OverlapIndex) Len() int {
	n := 0
	for i := range r.shards {
		n += len(r.shards[i].table)
	}
	return n
}

// Overlaps lists all the stored overlaps in key order
func (r *OverlapIndex) Overlaps() []Overlap {
	var keys [][2]int64
	for i := range r.shards {
		for key := range r.shards[i].table {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	overlaps := make([]Overlap, len(keys))
	for i, key := range keys {
		overlaps[i] = Overlap{fromSignedID(key[0]), fromSignedID(key[1]), r.Lookup(fromSignedID(key[0]), fromSignedID(key[1]))}
	}
	return overlaps
}

// fromSignedID unpacks signedID
func fromSignedID(id int64) Oriented {
	if id < 0 {
		return Oriented{int(-id - 1), -1}
	}
	return Oriented{int(id - 1), 1}
}

// sortKeys sorts key pairs lexicographically
func sortKeys(keys [][2]int64) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
}

// SaveOverlap fills the index with the overlap hints from the mapper and with the
// exact suffix/prefix overlaps between contig ends of length [minOverlap, maxOverlap]
func (r *OverlapIndex) SaveOverlap(ctx context.Context, contigs *ContigSet, hints []Overlap,
	minOverlap, maxOverlap int64, numThread int) error {
	for _, hint := range hints {
		r.Record(hint.A, hint.B, hint.Length)
	}
	if minOverlap <= 0 || maxOverlap < minOverlap {
		return nil
	}

	// Both strands of every contig, indexed by their first minOverlap bases
	n := contigs.Len()
	strands := make([][2][]byte, n)
	prefixes := map[string][]Oriented{}
	for i := 0; i < n; i++ {
		strands[i][0] = contigs.Contigs[i].Seq
		strands[i][1] = reverseComplement(contigs.Contigs[i].Seq)
		if int64(len(strands[i][0])) < minOverlap {
			continue
		}
		for k, strand := range []int8{1, -1} {
			key := string(strands[i][k][:minOverlap])
			prefixes[key] = append(prefixes[key], Oriented{i, strand})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(numThread, 1))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for k, strand := range []int8{1, -1} {
				r.scanSuffix(Oriented{i, strand}, strands[i][k], strands, prefixes, minOverlap, maxOverlap)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Noticef("Overlap table contains %d contig end overlaps (%d hints)", r.Len(), len(hints))
	return nil
}

// scanSuffix finds the longest exact overlap of the suffix of x with the prefix of
// every other oriented contig
func (r *OverlapIndex) scanSuffix(x Oriented, s []byte, strands [][2][]byte,
	prefixes map[string][]Oriented, minOverlap, maxOverlap int64) {
	L := int64(len(s))
	found := map[Oriented]bool{}
	for ov := min64(maxOverlap, L-1); ov >= minOverlap; ov-- {
		i := L - ov
		for _, y := range prefixes[string(s[i:i+minOverlap])] {
			if y.ID == x.ID || found[y] {
				continue
			}
			ys := strands[y.ID][0]
			if y.Strand < 0 {
				ys = strands[y.ID][1]
			}
			if int64(len(ys)) <= ov {
				continue
			}
			if bytes.Equal(s[i:], ys[:ov]) {
				r.Record(x, y, ov)
				found[y] = true
			}
		}
	}
}
