/*
 *  graph_test.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/21/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"math/rand"
	"testing"
)

// randomSeq makes a reproducible random DNA sequence
func randomSeq(rng *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[rng.Intn(4)]
	}
	return s
}

// testLibrary is a library with insert 500 +/- 30, reads of 100 and coverage 30
func testLibrary() *Library {
	return &Library{Name: "pe500", AvgInsert: 500, SdInsert: 30, AvgReadLength: 100, AvgCoverage: 30}
}

// newTestGraph builds a graph over random contigs of the given lengths and coverages
func newTestGraph(t *testing.T, lengths []int, covs []uint16, libs []*Library) *Graph {
	rng := rand.New(rand.NewSource(42))
	contigs := make([]Contig, len(lengths))
	for i, length := range lengths {
		contigs[i] = Contig{Name: "ctg" + string(rune('A'+i)), Seq: randomSeq(rng, length), Coverage: covs[i]}
	}
	return newTestGraphFromContigs(t, contigs, libs, nil)
}

// newTestGraphFromContigs builds a graph over the given contigs
func newTestGraphFromContigs(t *testing.T, contigs []Contig, libs []*Library, overlaps *OverlapIndex) *Graph {
	c := DefaultConfig()
	c.NumThread = 2
	c.TmpDir = t.TempDir()
	c.AverageCoverage = 30
	return NewGraph(NewContigSet(contigs), libs, overlaps, &c)
}

// link is a shorthand for an aggregated edge of a single library
func link(n1, n2 int, s1, s2 int8, numLink, gap int64) aggregatedEdge {
	return aggregatedEdge{n1, n2, s1, s2, numLink, gap, []int64{numLink}}
}

func TestMakeGraphMirrors(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, -1, 1, 10, 50),
		link(1, 2, 1, -1, 8, -20),
		link(0, 2, 1, 1, 2, 0), // below min link
	})
	g.CheckInvariants()

	if g.NumEdges() != 2 {
		t.Fatalf("Expected 2 edges, got %d", g.NumEdges())
	}
	// 0- 1+: the 5' end of 0 faces the 5' end of 1
	got := g.Nodes[1].Edge[0]
	expected := GraphEdge{Direction: -1, End: 0, Strand: -1, Length: 50, NumLink: 10}
	if got.Direction != expected.Direction || got.End != expected.End ||
		got.Strand != expected.Strand || got.Length != expected.Length {
		t.Fatalf("Expected mirror %v, got %v", expected, got)
	}
	if g.NumActiveNodes() != 3 {
		t.Fatalf("Expected 3 active nodes, got %d", g.NumActiveNodes())
	}
}

func TestDeleteEdgeKeepsSymmetry(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 10, 50),
		link(0, 2, -1, 1, 10, 50),
	})
	g.deleteEdge(0, g.Nodes[0].Edge[0])
	g.CheckInvariants()
	if g.NumEdges() != 1 {
		t.Fatalf("Expected 1 edge left, got %d", g.NumEdges())
	}
	if len(g.Nodes[2].Edge) != 0 {
		t.Fatal("Mirror of the deleted edge is still there")
	}
	if len(g.Nodes[1].Edge) != 1 {
		t.Fatalf("Expected the edge to node 1 to survive, got %v", g.Nodes[1].Edge)
	}
}

func TestDeleteRepeatEdge(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000}, []uint16{30, 30, 90}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 10, 50),
		link(0, 2, -1, 1, 10, 50),
		link(1, 2, 1, 1, 10, 50),
	})
	if n := g.DetectRepeat(); n != 1 {
		t.Fatalf("Expected 1 repeat, got %d", n)
	}
	if g.Nodes[2].State&StateRepeat == 0 {
		t.Fatal("Node at 3x coverage is not flagged as repeat")
	}
	if n := g.DeleteRepeatEdge(); n != 2 {
		t.Fatalf("Expected 2 repeat edges deleted, got %d", n)
	}
	g.CheckInvariants()
	if g.NumEdges() != 1 {
		t.Fatalf("Expected 1 edge left, got %d", g.NumEdges())
	}
}

func TestRepeatCoverageMonotone(t *testing.T) {
	// Raising the coverage of a node never turns a repeat into a non-repeat
	wasRepeat := false
	for cov := uint16(10); cov <= 120; cov += 10 {
		g := newTestGraph(t, []int{1000, 1000}, []uint16{30, cov}, []*Library{testLibrary()})
		g.DetectRepeat()
		isRepeat := g.Nodes[1].State&StateRepeat != 0
		if wasRepeat && !isRepeat {
			t.Fatalf("Coverage %d is not a repeat while a lower coverage was", cov)
		}
		wasRepeat = isRepeat
	}
	if !wasRepeat {
		t.Fatal("Coverage 120 at average 30 is expected to be a repeat")
	}
}

func TestDeleteErroneousEdge(t *testing.T) {
	g := newTestGraph(t, []int{2000, 2000, 2000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 100, 100),
		link(0, 2, 1, 1, 3, 120),
	})
	n, err := g.DeleteErroneousEdgeIterative(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 erroneous edge, got %d", n)
	}
	g.CheckInvariants()
	if len(g.Nodes[0].Edge) != 1 || g.Nodes[0].Edge[0].End != 1 {
		t.Fatalf("Expected the edge to node 1 to survive, got %v", g.Nodes[0].Edge)
	}
	// A second pass has nothing left to do
	n, err = g.DeleteErroneousEdge(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Expected a fixpoint, got %d more deletions", n)
	}
}

func TestBalancedEdgesAreKept(t *testing.T) {
	g := newTestGraph(t, []int{2000, 2000, 2000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 30, 100),
		link(0, 2, 1, 1, 25, 120),
	})
	n, err := g.DeleteErroneousEdgeIterative(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Expected both edges to be kept, %d deleted", n)
	}
	// They still conflict, so the side is left unresolved
	if n := g.Split(); n != 2 {
		t.Fatalf("Expected the 2 conflicting edges to be split, got %d", n)
	}
	g.CheckInvariants()
}

func TestPruneCrossAllelic(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000, 1000}, []uint16{15, 15, 15, 15}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 2, 1, 1, 30, 50),
		link(0, 3, 1, 1, 5, 50),
		link(1, 2, 1, 1, 4, 50),
		link(1, 3, 1, 1, 25, 50),
	})
	n := g.pruneCrossAllelic(AlleleGroup{0, 1}, AlleleGroup{2, 3})
	if n != 2 {
		t.Fatalf("Expected 2 cross-allelic edges deleted, got %d", n)
	}
	g.CheckInvariants()
	if g.Nodes[0].Edge[0].End != 2 || g.Nodes[1].Edge[0].End != 3 {
		t.Fatalf("Expected 0-2 and 1-3 to survive, got %v and %v", g.Nodes[0].Edge, g.Nodes[1].Edge)
	}
}

func TestMatchAlleles(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000, 1000}, []uint16{15, 15, 15, 15}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 2, 1, 1, 5, 50),
		link(1, 2, 1, 1, 30, 50),
		link(1, 3, 1, 1, 4, 50),
	})
	partner := g.matchAlleles(AlleleGroup{0, 1}, AlleleGroup{2, 3})
	if len(partner) != 2 || partner[0] != 1 || partner[1] != 0 {
		t.Fatalf("Expected partners [1 0], got %v", partner)
	}
	// A smaller group leaves one member without partner
	partner = g.matchAlleles(AlleleGroup{0, 1}, AlleleGroup{2})
	if len(partner) != 2 || partner[1] != 0 || partner[0] < 1 {
		t.Fatalf("Expected 1 to pair with 2 and 0 to stay alone, got %v", partner)
	}
	if n := g.pruneCrossAllelic(AlleleGroup{0, 1}, AlleleGroup{2}); n != 1 {
		t.Fatalf("Expected the edge 0-2 deleted, got %d deletions", n)
	}
	g.CheckInvariants()
	if len(g.Nodes[0].Edge) != 0 {
		t.Fatalf("Expected no edge left on 0, got %v", g.Nodes[0].Edge)
	}
}

// crossAllelicGraph joins the alleles 0/1 to the alleles 2/3 with all four edges
func crossAllelicGraph(t *testing.T, covs []uint16) *Graph {
	g := newTestGraph(t, []int{1000, 1000, 1000, 1000}, covs, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 2, 1, 1, 30, 50),
		link(0, 3, 1, 1, 5, 50),
		link(1, 2, 1, 1, 4, 50),
		link(1, 3, 1, 1, 25, 50),
	})
	g.ClassifyNode()
	return g
}

func TestAllelesAt(t *testing.T) {
	g := crossAllelicGraph(t, []uint16{15, 15, 15, 15})
	tolerence := g.tolerence()
	groups := g.allelesAt(0, 1, tolerence)
	if len(groups) != 1 || groups[0].key() != "2,3" {
		t.Fatalf("Expected the allele group 2,3 on the 3' side of 0, got %v", groups)
	}
	if groups := g.allelesAt(0, -1, tolerence); len(groups) != 0 {
		t.Fatalf("Expected nothing on the 5' side of 0, got %v", groups)
	}
	groups = g.allelesAt(3, -1, tolerence)
	if len(groups) != 1 || groups[0].key() != "0,1" {
		t.Fatalf("Expected the allele group 0,1 on the 5' side of 3, got %v", groups)
	}

	g = crossAllelicGraph(t, []uint16{15, 15, 30, 30})
	if groups := g.allelesAt(0, 1, tolerence); len(groups) != 0 {
		t.Fatalf("Homozygous neighbours are not alleles, got %v", groups)
	}
}

func TestDeleteHeteroEdge(t *testing.T) {
	g := crossAllelicGraph(t, []uint16{15, 15, 15, 15})
	if n := g.DeleteHeteroEdge(); n != 2 {
		t.Fatalf("Expected 2 cross-allelic edges deleted, got %d", n)
	}
	g.CheckInvariants()
	if len(g.Nodes[0].Edge) != 1 || g.Nodes[0].Edge[0].End != 2 ||
		len(g.Nodes[1].Edge) != 1 || g.Nodes[1].Edge[0].End != 3 {
		t.Fatalf("Expected 0-2 and 1-3 to survive, got %v and %v", g.Nodes[0].Edge, g.Nodes[1].Edge)
	}
	if g.Stats.HeteroEdges != 2 {
		t.Fatalf("Expected 2 in the stats, got %d", g.Stats.HeteroEdges)
	}

	// A single allele group has nothing to be matched with
	g = crossAllelicGraph(t, []uint16{15, 15, 30, 30})
	if n := g.DeleteHeteroEdge(); n != 0 {
		t.Fatalf("Expected no deletion with a single allele group, got %d", n)
	}
}

func TestRemoveHeteroOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	contigs := make([]Contig, 4)
	for i, cov := range []uint16{15, 15, 15, 30} {
		contigs[i] = Contig{Name: "ctg" + string(rune('A'+i)), Seq: randomSeq(rng, 1000), Coverage: cov}
	}
	overlaps := NewOverlapIndex()
	overlaps.Record(Oriented{2, 1}, Oriented{1, 1}, 40)
	g := newTestGraphFromContigs(t, contigs, []*Library{testLibrary()}, overlaps)
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 10, -60),  // unknown overlap of two alleles
		link(1, 2, -1, -1, 10, -40), // 2+ 1+ overlap by 40
		link(2, 3, 1, 1, 10, -60),   // 3 is homozygous
	})
	g.ClassifyNode()
	if n := g.RemoveHeteroOverlap(); n != 1 {
		t.Fatalf("Expected 1 overlap removed, got %d", n)
	}
	g.CheckInvariants()
	if len(g.Nodes[0].Edge) != 0 {
		t.Fatalf("Expected the edge 0-1 removed, got %v", g.Nodes[0].Edge)
	}
	if len(g.Nodes[1].Edge) != 1 || g.Nodes[1].Edge[0].End != 2 || len(g.Nodes[3].Edge) != 1 {
		t.Fatal("Expected the confirmed overlap and the homozygous edge to stay")
	}
}

func TestDeleteErroneousEdgeLongerLibrary(t *testing.T) {
	// The short library expects about 0.1 link on each edge and cannot tell, the
	// long one expects about 250
	for _, tt := range []struct {
		longLinks int64
		expected  int
	}{
		{200, 1},
		{100, 0},
	} {
		short := &Library{Name: "pe500", AvgInsert: 500, SdInsert: 30, AvgReadLength: 100, AvgCoverage: 0.1}
		long := &Library{Name: "mp2000", AvgInsert: 2000, SdInsert: 100, AvgReadLength: 100, AvgCoverage: 30}
		g := newTestGraph(t, []int{2000, 2000, 2000}, []uint16{30, 30, 30}, []*Library{long, short})
		if g.Library() != short {
			t.Fatal("Expected the short library to be active first")
		}
		g.MakeGraph([]aggregatedEdge{
			{0, 1, 1, 1, 10, 100, []int64{10, tt.longLinks}},
			{0, 2, 1, 1, 5, 120, []int64{5, 3}},
		})
		n, err := g.DeleteErroneousEdgeIterative(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n != tt.expected {
			t.Fatalf("With %d long links, expected %d deletions, got %d", tt.longLinks, tt.expected, n)
		}
		g.CheckInvariants()
	}
}

func TestCheckInvariantsPanicsOnBrokenMirror(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 10, 50)})
	g.Nodes[1].Edge = nil
	defer func() {
		if recover() == nil {
			t.Fatal("Expected a panic on a missing mirror")
		}
	}()
	g.CheckInvariants()
}
