/*
 *  pool.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/08/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// GraphLink is a single paired-end observation between two nodes. Strand1 and Strand2
// are the orientations of the nodes in the frame of the sequenced fragment, Offset1
// and Offset2 the distances from the outer ends of the mates to the facing node ends.
// Canonical links have Node1 < Node2.
type GraphLink struct {
	Node1, Node2     int32
	Strand1, Strand2 int8
	Library          uint16
	Offset1, Offset2 int32
	Gap              int32
}

// canonical swaps the two sides so that Node1 < Node2, reading the fragment from
// the other strand
func (r GraphLink) canonical() GraphLink {
	if r.Node1 < r.Node2 {
		return r
	}
	return GraphLink{
		Node1:   r.Node2,
		Node2:   r.Node1,
		Strand1: -r.Strand2,
		Strand2: -r.Strand1,
		Library: r.Library,
		Offset1: r.Offset2,
		Offset2: r.Offset1,
		Gap:     r.Gap,
	}
}

// bucket is the link pool partition of the link
func (r *GraphLink) bucket() int {
	return decideTableID([2]int64{int64(r.Node1), int64(r.Node2)})
}

// linkBucket is one scratch file of the pool
type linkBucket struct {
	sync.Mutex
	file  *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	count int64
}

// LinkPool spills links to TableDivid compressed scratch files, partitioned by the
// hash of the node pair so that each bucket can be aggregated on its own
type LinkPool struct {
	buckets [TableDivid]linkBucket
}

// NewLinkPool creates the scratch files in tmpDir
func NewLinkPool(tmpDir string) (*LinkPool, error) {
	r := new(LinkPool)
	for i := range r.buckets {
		b := &r.buckets[i]
		f, err := os.CreateTemp(tmpDir, fmt.Sprintf("graphLink%d.*.zst", i))
		if err != nil {
			r.Remove()
			return nil, fmt.Errorf("cannot create link pool in `%s`: %w", tmpDir, err)
		}
		b.file = f
		b.enc, err = zstd.NewWriter(f,
			zstd.WithEncoderCRC(false),
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			r.Remove()
			return nil, fmt.Errorf("cannot compress link pool: %w", err)
		}
		b.buf = bufio.NewWriter(b.enc)
	}
	return r, nil
}

// Add appends links to their buckets, safe for concurrent use
func (r *LinkPool) Add(links []GraphLink) error {
	var groups [TableDivid][]GraphLink
	for i := range links {
		link := links[i].canonical()
		k := link.bucket()
		groups[k] = append(groups[k], link)
	}
	for k := range groups {
		if len(groups[k]) == 0 {
			continue
		}
		b := &r.buckets[k]
		b.Lock()
		err := binary.Write(b.buf, binary.LittleEndian, groups[k])
		b.count += int64(len(groups[k]))
		b.Unlock()
		if err != nil {
			return fmt.Errorf("cannot write link pool `%s`: %w", b.file.Name(), err)
		}
	}
	return nil
}

// Len returns the number of links stored
func (r *LinkPool) Len() int64 {
	n := int64(0)
	for i := range r.buckets {
		n += r.buckets[i].count
	}
	return n
}

// Close finishes all the writes, the buckets can be read afterwards
func (r *LinkPool) Close() error {
	for i := range r.buckets {
		b := &r.buckets[i]
		if b.enc == nil {
			continue
		}
		if err := b.buf.Flush(); err != nil {
			return fmt.Errorf("cannot flush link pool `%s`: %w", b.file.Name(), err)
		}
		if err := b.enc.Close(); err != nil {
			return fmt.Errorf("cannot flush link pool `%s`: %w", b.file.Name(), err)
		}
		b.enc = nil
	}
	return nil
}

// ReadBucket streams one bucket back and unlinks its file
func (r *LinkPool) ReadBucket(k int) ([]GraphLink, error) {
	b := &r.buckets[k]
	if b.file == nil {
		return nil, nil
	}
	defer b.remove()
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("cannot rewind link pool `%s`: %w", b.file.Name(), err)
	}
	dec, err := zstd.NewReader(bufio.NewReader(b.file), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("cannot decompress link pool `%s`: %w", b.file.Name(), err)
	}
	defer dec.Close()
	links := make([]GraphLink, b.count)
	if err := binary.Read(dec, binary.LittleEndian, links); err != nil {
		return nil, fmt.Errorf("corrupted link pool `%s`: %w", b.file.Name(), err)
	}
	return links, nil
}

// Remove unlinks every scratch file that is still around
func (r *LinkPool) Remove() {
	for i := range r.buckets {
		r.buckets[i].remove()
	}
}

// remove closes and unlinks the bucket file
func (r *linkBucket) remove() {
	if r.file == nil {
		return
	}
	if r.enc != nil {
		r.enc.Close()
		r.enc = nil
	}
	name := r.file.Name()
	r.file.Close()
	os.Remove(name)
	r.file = nil
}
