/*
 * Filename: /Users/bao/code/scaffolder/insert.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Monday, March 16th 2020, 10:47:29 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

import (
	"fmt"
	"math"
	"sort"

	"github.com/gonum/floats"
	"github.com/kshedden/gonpy"
	"github.com/shenwei356/xopen"
)

// InsertBinSize is the width of the bins of the insert size histogram
const InsertBinSize = 10

// InsertSizeModel is the insert size distribution of a library, learned from the
// pairs with both mates on the same contig
type InsertSizeModel struct {
	Inserts []float64
	Avg, Sd float64
	Lower   float64
	Upper   float64
}

// CollectInserts returns the insert sizes of the properly oriented pairs within
// one contig
func CollectInserts(lib *Library) []float64 {
	var inserts []float64
	for _, pair := range lib.Pairs {
		m1, m2 := pair.Mate1, pair.Mate2
		if m1.Contig != m2.Contig || m1.Strand == m2.Strand {
			continue
		}
		if m1.Strand < 0 {
			m1, m2 = m2, m1
		}
		insert := m2.Pos + m2.Len - m1.Pos
		if insert <= 0 {
			continue
		}
		inserts = append(inserts, float64(insert))
	}
	return inserts
}

// NewInsertSizeModel estimates the mean and deviation of the insert sizes after
// removing the outliers beyond OUTLIERTHRESHOLD MADs
func NewInsertSizeModel(inserts []float64) (*InsertSizeModel, error) {
	if len(inserts) == 0 {
		return nil, fmt.Errorf("no pair maps within a contig")
	}
	r := &InsertSizeModel{Inserts: inserts}
	r.Lower, r.Upper = OutlierCutoff(inserts)
	var kept []float64
	for _, insert := range inserts {
		if insert >= r.Lower && insert <= r.Upper {
			kept = append(kept, insert)
		}
	}
	if len(kept) == 0 {
		kept = inserts
	}
	n := float64(len(kept))
	r.Avg = floats.Sum(kept) / n
	sq := make([]float64, len(kept))
	for i, insert := range kept {
		sq[i] = (insert - r.Avg) * (insert - r.Avg)
	}
	if len(kept) > 1 {
		r.Sd = math.Sqrt(floats.Sum(sq) / (n - 1))
	}
	log.Noticef("Insert size = %.0f +/- %.0f from %s pairs (outliers outside [%.0f, %.0f])",
		r.Avg, r.Sd, Percentage(len(kept), len(inserts)), r.Lower, r.Upper)
	return r, nil
}

// EstimateInsertSize fills the missing statistics of a library from its pairs
func EstimateInsertSize(lib *Library) (*InsertSizeModel, error) {
	lib.estimateReadLength()
	if lib.AvgInsert > 0 {
		return nil, nil
	}
	model, err := NewInsertSizeModel(CollectInserts(lib))
	if err != nil {
		return nil, fmt.Errorf("library %s: cannot estimate insert size: %w", lib.Name, err)
	}
	lib.AvgInsert = model.Avg
	if lib.SdInsert <= 0 {
		lib.SdInsert = model.Sd
	}
	return model, nil
}

// writeDistribution writes the insert size histogram to file
func (r *InsertSizeModel) writeDistribution(outfile string) error {
	w, err := xopen.Wopen(outfile)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", outfile, err)
	}
	defer w.Close()

	counts := map[int]int{}
	for _, insert := range r.Inserts {
		counts[int(insert)/InsertBinSize]++
	}
	bins := make([]int, 0, len(counts))
	for bin := range counts {
		bins = append(bins, bin)
	}
	sort.Ints(bins)

	fmt.Fprintf(w, "#BinStart\tBinSize\tNumPairs\tOutlier\n")
	for _, bin := range bins {
		start := float64(bin * InsertBinSize)
		outlier := start+InsertBinSize <= r.Lower || start > r.Upper
		fmt.Fprintf(w, "%d\t%d\t%d\t%t\n", bin*InsertBinSize, InsertBinSize, counts[bin], outlier)
	}
	log.Noticef("Insert size distribution written to `%s`", outfile)
	return nil
}

// writeNpy dumps the raw insert sizes as a numpy array
func (r *InsertSizeModel) writeNpy(outfile string) error {
	w, err := gonpy.NewFileWriter(outfile)
	if err != nil {
		return fmt.Errorf("cannot write `%s`: %w", outfile, err)
	}
	w.Shape = []int{len(r.Inserts)}
	if err := w.WriteFloat64(r.Inserts); err != nil {
		return fmt.Errorf("cannot write `%s`: %w", outfile, err)
	}
	log.Noticef("Insert sizes written to `%s`", outfile)
	return nil
}

// WriteFiles saves the histogram and, when asked, the raw values
func (r *InsertSizeModel) WriteFiles(prefix string, npy bool) error {
	if err := r.writeDistribution(prefix + ".distribution.txt"); err != nil {
		return err
	}
	if npy {
		return r.writeNpy(prefix + ".inserts.npy")
	}
	return nil
}
