/**
 * Filename: /Users/bao/code/scaffolder/base.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Tuesday, March 3rd 2020, 8:07:22 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

import (
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	logging "github.com/op/go-logging"
)

const (
	// Version is the current version of the scaffolder
	Version = "0.3.1"
	// TableDivid is the number of shards of overlap table and link pool, must be power of 2
	TableDivid = 4
	// MaxDiffRate is the max relative length difference between two bubble arms
	MaxDiffRate = 0.1
	// EdgeExpectedRateTh is the observed/expected ratio below which an edge is erroneous
	EdgeExpectedRateTh = 0.5
	// EdgeExpectedRateUpperTh is the observed/expected ratio the competing edge must reach
	EdgeExpectedRateUpperTh = 0.5
	// CheckUsingLongerLibTh is the expected number of links below which a library is inconclusive
	CheckUsingLongerLibTh = 3.0
	// RepeatCoverageRate is the coverage / average coverage at which a node is a repeat
	RepeatCoverageRate = 1.75
	// HomoCoverageRate is the coverage / average coverage below which a node is heterozygous
	HomoCoverageRate = 0.75
	// MaxHeteroRate is the max divergence between two heterozygous bubble arms
	MaxHeteroRate = 0.1
	// MaxOverlapIdentityDiff is the relative tolerance when matching overlaps to gap estimates
	MaxOverlapIdentityDiff = 0.1
	// OUTLIERTHRESHOLD is how many deviation from MAD
	OUTLIERTHRESHOLD = 3.5
	// FastaLineWidth is the width of sequence lines in the output FASTA
	FastaLineWidth = 60
)

// Node states
const (
	StateRepeat   uint8 = 0x1
	StateIncluded uint8 = 0x2
	StateDeleted  uint8 = 0x4
)

var log = logging.MustGetLogger("scaffolder")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// Round makes a round number
func Round(input float64) float64 {
	if input < 0 {
		return math.Ceil(input - 0.5)
	}
	return math.Floor(input + 0.5)
}

// abs64 gets the absolute value of an int64
func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// min64 gets the minimum for two int64
func min64(x, y int64) int64 {
	if x < y {
		return x
	}
	return y
}

// max64 gets the maximum for two int64
func max64(x, y int64) int64 {
	if x > y {
		return x
	}
	return y
}

// maxInt gets the maximum for two ints
func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// minInt gets the minimum for two ints
func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// median gets the median value of an array
func median(s []float64) float64 {
	// Make a sorted copy
	numbers := make([]float64, len(s))
	copy(numbers, s)
	sort.Float64s(numbers)

	middle := len(numbers) / 2
	result := numbers[middle]
	if len(numbers)%2 == 0 {
		result = (result + numbers[middle-1]) / 2
	}
	return result
}

// OutlierCutoff implements Iglewicz and Hoaglin's robust, returns the cutoff values -
// lower bound and upper bound.
func OutlierCutoff(a []float64) (float64, float64) {
	M := median(a)
	D := make([]float64, len(a))
	for i := 0; i < len(a); i++ {
		D[i] = math.Abs(a[i] - M)
	}
	MAD := median(D)
	C := OUTLIERTHRESHOLD / .67449 * MAD
	return M - C, M + C
}

// Percentage prints a human readable message of the percentage
func Percentage(a, b int) string {
	if b == 0 {
		return fmt.Sprintf("%d of %d", a, b)
	}
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}

// strandChar converts +1/-1 to '+'/'-'
func strandChar(strand int8) byte {
	if strand < 0 {
		return '-'
	}
	return '+'
}

// assertf panics on broken graph invariants, these are bugs and not data problems
func assertf(ok bool, format string, args ...interface{}) {
	if !ok {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
