/*
 *  kernel_test.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/21/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"math"
	"testing"
)

func TestCalcExpectedLinkDelta(t *testing.T) {
	// With sd = 0 the kernel is piecewise linear: (3600 - 1700 - 1700 + 200) * 30 / 400
	lib := &Library{AvgInsert: 500, SdInsert: 0, AvgReadLength: 100, AvgCoverage: 30}
	got := CalcExpectedLink(lib, 2000, 2000, 100)
	expected := 30.0
	if math.Abs(got-expected) > 1e-9 {
		t.Fatalf("Expected %.2f links, got %.4f", expected, got)
	}
}

func TestCalcExpectedLinkShape(t *testing.T) {
	lib := &Library{AvgInsert: 500, SdInsert: 50, AvgReadLength: 100, AvgCoverage: 30}
	for g := -200.0; g <= 1500; g += 25 {
		if e := CalcExpectedLink(lib, 1000, 1000, g); e < 0 {
			t.Fatalf("Negative expectation %.4f at gap %.0f", e, g)
		}
	}
	prev := CalcExpectedLink(lib, 1000, 1000, lib.AvgInsert)
	for g := lib.AvgInsert + 50; g <= lib.AvgInsert+1000; g += 50 {
		e := CalcExpectedLink(lib, 1000, 1000, g)
		if e > prev+1e-9 {
			t.Fatalf("Expectation grows from %.4f to %.4f at gap %.0f", prev, e, g)
		}
		prev = e
	}
	if e := CalcExpectedLink(&Library{AvgInsert: 500}, 1000, 1000, 0); e != 0 {
		t.Fatalf("A library without reads expects nothing, got %.4f", e)
	}
}

func TestMergeIntervals(t *testing.T) {
	parts := []ScaffoldPart{
		{0, 1, 200, 300},
		{1, 1, 0, 100},
		{2, -1, 50, 150},
	}
	got := MergeIntervals(parts)
	expected := []Interval{{0, 150}, {200, 300}}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
	if MergeIntervals(nil) != nil {
		t.Fatal("Expected no interval for no part")
	}
}

func TestCalcExpectedLinkNode(t *testing.T) {
	lib := &Library{AvgInsert: 500, SdInsert: 0, AvgReadLength: 100, AvgCoverage: 30}
	n1 := &GraphNode{Length: 2000, Contig: []ScaffoldPart{{0, 1, 0, 2000}}}
	n2 := &GraphNode{Length: 2000, Contig: []ScaffoldPart{{1, 1, 0, 2000}}}
	got := CalcExpectedLinkNode(lib, n1, 1, n2, -1, 100)
	if math.Abs(got-30) > 1e-9 {
		t.Fatalf("Single interval nodes must match the contig formula, got %.4f", got)
	}
	empty := &GraphNode{}
	if CalcExpectedLinkNode(lib, n1, 1, empty, 1, 100) != 0 {
		t.Fatal("Nodes without contigs expect no link")
	}
}

func TestCalcNumPossiblePosition(t *testing.T) {
	lib := &Library{AvgInsert: 500, SdInsert: 30, AvgReadLength: 100, AvgCoverage: 30}
	if got := CalcNumPossiblePosition(lib, 1000, 1000, 200, 500); got != 101 {
		t.Fatalf("Expected 101 placements, got %d", got)
	}
	if got := CalcNumPossiblePosition(lib, 1000, 1000, 400, 500); got != 0 {
		t.Fatalf("A gap too wide for the insert has no placement, got %d", got)
	}
}
