/*
 *  layout_test.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/21/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMakeScaffoldChain(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	// 0+ 1- 2+
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, -1, 30, 100),
		link(1, 2, -1, 1, 20, 50),
	})
	g.CheckInvariants()
	if n := g.MakeScaffold(); n != 2 {
		t.Fatalf("Expected 2 merges, got %d", n)
	}
	g.CheckInvariants()
	if g.NumActiveNodes() != 1 {
		t.Fatalf("Expected a single node left, got %d", g.NumActiveNodes())
	}
	expected := []ScaffoldPart{
		{0, 1, 0, 1000},
		{1, -1, 1100, 2100},
		{2, 1, 2150, 3150},
	}
	got := g.Nodes[0].Contig
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
	if g.Nodes[0].Length != 3150 {
		t.Fatalf("Expected length 3150, got %d", g.Nodes[0].Length)
	}
	for _, v := range []int{1, 2} {
		if g.Nodes[v].State&StateIncluded == 0 {
			t.Fatalf("Node %d is expected to be included", v)
		}
	}
	// Every contig is found where its node says
	for i := 0; i < 3; i++ {
		if g.position[i].Node != 0 {
			t.Fatalf("Contig %d is expected in node 0, got %v", i, g.position[i])
		}
	}
}

func TestMakeScaffoldSkipsConflicts(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000, 1000}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	// 1 and 2 both want the 3' end of 0, only the best one gets it
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 30, 100),
		link(0, 2, 1, 1, 10, 150),
	})
	if n := g.MakeScaffold(); n != 1 {
		t.Fatalf("Expected 1 merge, got %d", n)
	}
	g.CheckInvariants()
	parts := g.Nodes[0].Contig
	if len(parts) != 2 || parts[1].Contig != 1 {
		t.Fatalf("Expected contig 1 next to contig 0, got %v", parts)
	}
}

func TestLayoutNodes(t *testing.T) {
	g := newTestGraph(t, []int{1000, 500, 800}, []uint16{30, 30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 10, 300),
		link(0, 2, 1, -1, 10, 100),
	})
	layouts := g.LayoutNodes(0, 1)
	if len(layouts) != 2 {
		t.Fatalf("Expected 2 layouts, got %d", len(layouts))
	}
	if layouts[0].Node != 2 || layouts[0].Start != 1100 || layouts[0].End != 1900 {
		t.Fatalf("Expected node 2 at [1100, 1900), got %v", layouts[0])
	}
	if layouts[1].Node != 1 || layouts[1].Start != 1300 || layouts[1].End != 1800 {
		t.Fatalf("Expected node 1 at [1300, 1800), got %v", layouts[1])
	}
	if len(g.LayoutNodes(0, -1)) != 0 {
		t.Fatal("Expected nothing on the 5' side")
	}
}

func TestLayout2SeqFillsGap(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, 200)})
	g.MakeScaffold()
	seq, parts := g.Layout2Seq(0)
	if len(seq) != 2200 {
		t.Fatalf("Expected length 2200, got %d", len(seq))
	}
	if !bytes.Equal(seq[1000:1200], bytes.Repeat([]byte{'N'}, 200)) {
		t.Fatal("Expected 200 N between the contigs")
	}
	if !bytes.Equal(seq[:1000], g.contigs.Contigs[0].Seq) || !bytes.Equal(seq[1200:], g.contigs.Contigs[1].Seq) {
		t.Fatal("Contig sequences are not copied verbatim")
	}
	if len(parts) != 2 || parts[1].Start != 1200 || parts[1].End != 2200 {
		t.Fatalf("Unexpected placements %v", parts)
	}
}

func TestLayout2SeqJoinsOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomSeq(rng, 500)
	b := append(append([]byte{}, a[460:]...), randomSeq(rng, 460)...)
	contigs := []Contig{{Name: "a", Seq: a, Coverage: 30}, {Name: "b", Seq: b, Coverage: 30}}
	overlaps := NewOverlapIndex()
	set := NewContigSet(contigs)
	if err := overlaps.SaveOverlap(context.Background(), set, nil, 32, 100, 2); err != nil {
		t.Fatal(err)
	}
	if got := overlaps.Lookup(Oriented{0, 1}, Oriented{1, 1}); got != 40 {
		t.Fatalf("Expected an overlap of 40, got %d", got)
	}

	g := newTestGraphFromContigs(t, contigs, []*Library{testLibrary()}, overlaps)
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, -40)})
	g.MakeScaffold()
	seq, _ := g.Layout2Seq(0)
	if len(seq) != len(a)+len(b)-40 {
		t.Fatalf("Expected length %d, got %d", len(a)+len(b)-40, len(seq))
	}
	if bytes.IndexByte(seq, 'N') >= 0 {
		t.Fatal("Confirmed overlap must not leave any N")
	}
	if !bytes.Equal(seq[:500], a) || !bytes.Equal(seq[460:], b) {
		t.Fatal("Overlap is not joined at the right place")
	}
}

func TestLayout2SeqUnconfirmedOverlap(t *testing.T) {
	g := newTestGraph(t, []int{500, 500}, []uint16{30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, -40)})
	g.MakeScaffold()
	seq, _ := g.Layout2Seq(0)
	// Random contigs do not overlap, they are separated by a single N
	if len(seq) != 1001 || seq[500] != 'N' {
		t.Fatalf("Expected a single N separator, got length %d", len(seq))
	}
}

func TestLayout2SeqKeepsContainedContig(t *testing.T) {
	g := newTestGraph(t, []int{1000, 100}, []uint16{30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, -150)})
	g.MakeScaffold()
	seq, parts := g.Layout2Seq(0)
	if len(seq) != 1000 {
		t.Fatalf("A contained contig adds no bases, got length %d", len(seq))
	}
	if len(parts) != 2 || parts[1] != (ScaffoldPart{1, 1, 850, 950}) {
		t.Fatalf("Expected contig 1 placed at [850, 950), got %v", parts)
	}

	scaffolds := g.Scaffolds(200)
	if len(scaffolds) != 1 || len(scaffolds[0].Parts) != 2 {
		t.Fatalf("Expected both contigs in the scaffold, got %v", scaffolds)
	}
	filename := filepath.Join(t.TempDir(), "components.tsv")
	if err := g.WriteComponents(filename, scaffolds); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "scaffold1\tctgB\t+\t850\t950\n") {
		t.Fatalf("Expected the contained contig in the components:\n%s", content)
	}
}

func TestLayoutAverageCoverage(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 60}, []*Library{testLibrary()})
	tests := []struct {
		parts    []ScaffoldPart
		expected float64
	}{
		{nil, 0},
		{[]ScaffoldPart{{0, 1, 0, 1000}}, 30},
		// The overlapping 100 bases count once, for contig 0
		{[]ScaffoldPart{{1, -1, 900, 1900}, {0, 1, 0, 1000}}, (30*1000 + 60*900) / 1900.0},
		{[]ScaffoldPart{{0, 1, 0, 1000}, {1, 1, 100, 200}}, 30},
	}
	for _, tt := range tests {
		got := g.LayoutAverageCoverage(tt.parts)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("LayoutAverageCoverage(%v) = %f; want %f", tt.parts, got, tt.expected)
		}
	}
}

func TestCrushBubble(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	arm := randomSeq(rng, 500)
	alt := append([]byte{}, arm...)
	for _, i := range []int{50, 150, 250, 350, 450} {
		alt[i] = "CGTA"[strings.IndexByte("ACGT", alt[i])]
	}
	contigs := []Contig{
		{Name: "left", Seq: randomSeq(rng, 1000), Coverage: 30},
		{Name: "arm1", Seq: arm, Coverage: 40},
		{Name: "arm2", Seq: alt, Coverage: 20},
		{Name: "right", Seq: randomSeq(rng, 1000), Coverage: 30},
	}
	g := newTestGraphFromContigs(t, contigs, []*Library{testLibrary()}, nil)
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 20, 50),
		link(0, 2, 1, 1, 20, 50),
		link(1, 3, 1, 1, 20, 50),
		link(2, 3, 1, 1, 20, 50),
	})
	n, err := g.CrushBubbleIterative(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 bubble, got %d", n)
	}
	g.CheckInvariants()
	if g.Nodes[2].State&StateDeleted == 0 {
		t.Fatal("The lower coverage arm is expected to be crushed")
	}
	if !g.hasBubble(1) {
		t.Fatal("The kept arm is expected to be marked")
	}
	if len(g.Bubbles()) != 1 || !bytes.Equal(g.Bubbles()[0].Seq, alt) {
		t.Fatal("The crushed arm is expected among the bubbles")
	}

	// The graph is a chain now
	g.MakeScaffold()
	if g.NumActiveNodes() != 1 {
		t.Fatalf("Expected a single scaffold, got %d nodes", g.NumActiveNodes())
	}

	prefix := filepath.Join(t.TempDir(), "out")
	if err := g.PrintScaffoldBubble(prefix); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(prefix + "_scaffoldBubble.fa")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), ">bubble1 arm2 len=500") {
		t.Fatalf("Unexpected bubble file %q", string(content[:40]))
	}
}

func TestCrushHeteroBubbleNeedsHeteroArms(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	arm := randomSeq(rng, 500)
	contigs := []Contig{
		{Name: "left", Seq: randomSeq(rng, 1000), Coverage: 30},
		{Name: "arm1", Seq: arm, Coverage: 30},
		{Name: "arm2", Seq: arm, Coverage: 30},
		{Name: "right", Seq: randomSeq(rng, 1000), Coverage: 30},
	}
	g := newTestGraphFromContigs(t, contigs, []*Library{testLibrary()}, nil)
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 20, 50),
		link(0, 2, 1, 1, 20, 50),
		link(1, 3, 1, 1, 20, 50),
		link(2, 3, 1, 1, 20, 50),
	})
	g.ClassifyNode()
	n, err := g.CrushHeteroBubble(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Homozygous arms are not heterozygous bubbles, got %d", n)
	}
}

func TestCrushHeteroBubble(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	arm := randomSeq(rng, 500)
	alt := append([]byte{}, arm...)
	// 3% divergence between the two alleles
	for i := 15; i < len(alt); i += 33 {
		alt[i] = "CGTA"[strings.IndexByte("ACGT", alt[i])]
	}
	contigs := []Contig{
		{Name: "left", Seq: randomSeq(rng, 1000), Coverage: 30},
		{Name: "arm1", Seq: arm, Coverage: 16},
		{Name: "arm2", Seq: alt, Coverage: 14},
		{Name: "right", Seq: randomSeq(rng, 1000), Coverage: 30},
	}
	g := newTestGraphFromContigs(t, contigs, []*Library{testLibrary()}, nil)
	g.MakeGraph([]aggregatedEdge{
		link(0, 1, 1, 1, 20, 50),
		link(0, 2, 1, 1, 20, 50),
		link(1, 3, 1, 1, 20, 50),
		link(2, 3, 1, 1, 20, 50),
	})
	g.ClassifyNode()
	n, err := g.CrushHeteroBubble(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 heterozygous bubble, got %d", n)
	}
	g.CheckInvariants()
	if g.Nodes[2].State&StateDeleted == 0 {
		t.Fatal("The lower coverage allele is expected to be crushed")
	}
	g.MakeScaffold()
	if g.NumActiveNodes() != 1 {
		t.Fatalf("Expected a single scaffold, got %d nodes", g.NumActiveNodes())
	}

	prefix := filepath.Join(t.TempDir(), "out")
	scaffolds, err := g.CutAndPrintSeq(prefix, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scaffolds) != 1 || len(scaffolds[0].Seq) != 2600 {
		t.Fatalf("Expected one scaffold of 2600bp, got %v", len(scaffolds))
	}
	if !bytes.Contains(scaffolds[0].Seq, arm) || bytes.Contains(scaffolds[0].Seq, alt) {
		t.Fatal("The scaffold is expected to carry arm1 only")
	}

	if err := g.PrintScaffoldBubble(prefix); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(prefix + "_scaffoldBubble.fa")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if !strings.HasPrefix(lines[0], ">bubble1 arm2 len=500") {
		t.Fatalf("Unexpected bubble header %q", lines[0])
	}
	if strings.Join(lines[1:], "") != string(alt) {
		t.Fatal("The bubble file is expected to carry arm2")
	}
}

func TestSplitLowCoverageLink(t *testing.T) {
	for _, spanning := range []int{0, 10} {
		lib := testLibrary()
		for i := 0; i < spanning; i++ {
			lib.Pairs = append(lib.Pairs, MappedPair{
				Mate1: Mate{Contig: 0, Pos: 800, Strand: 1, Len: 100},
				Mate2: Mate{Contig: 1, Pos: 0, Strand: -1, Len: 100},
			})
		}
		g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 30}, []*Library{lib})
		g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, 200)})
		g.MakeScaffold()

		n, err := g.SplitLowCoverageLink(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		g.CheckInvariants()
		if spanning == 0 {
			if n != 1 || len(g.Nodes) != 3 {
				t.Fatalf("Expected the junction to be cut, got %d cuts and %d nodes", n, len(g.Nodes))
			}
			if g.Nodes[2].Contig[0].Contig != 1 || g.Nodes[2].Contig[0].Start != 0 || g.Nodes[2].Length != 1000 {
				t.Fatalf("Unexpected piece %v", g.Nodes[2].Contig)
			}
			if g.position[1].Node != 2 {
				t.Fatalf("Contig 1 is expected in node 2, got %v", g.position[1])
			}
		} else if n != 0 {
			t.Fatalf("A junction spanned by %d pairs must not be cut", spanning)
		}
	}
}

func TestSplitLowCoverageLinkDeletesErroneousPairs(t *testing.T) {
	pair := func(c1 int, p1 int64, s1 int8, c2 int, p2 int64, s2 int8) MappedPair {
		return MappedPair{
			Mate1: Mate{Contig: c1, Pos: p1, Strand: s1, Len: 100},
			Mate2: Mate{Contig: c2, Pos: p2, Strand: s2, Len: 100},
		}
	}
	erroneous := []MappedPair{
		pair(0, 100, 1, 1, 900, -1), // insert of 2100
		pair(0, 100, 1, 1, 500, 1),  // same strand
		pair(0, 900, -1, 1, 0, 1),   // facing outwards
	}
	for _, spanning := range []int{0, 10} {
		lib := testLibrary()
		for i := 0; i < spanning; i++ {
			lib.Pairs = append(lib.Pairs, pair(0, 800, 1, 1, 0, -1))
		}
		lib.Pairs = append(lib.Pairs, erroneous...)
		lib.Pairs = append(lib.Pairs, pair(0, 100, 1, 0, 500, -1))
		g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 30}, []*Library{lib})
		g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, 200)})
		g.MakeScaffold()

		n, err := g.SplitLowCoverageLink(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		g.CheckInvariants()
		if spanning == 0 {
			// The junction is cut, its pairs become ordinary links
			if n != 1 || len(lib.Pairs) != 4 || g.Stats.ErroneousPairs != 0 {
				t.Fatalf("Expected a cut and no deletion, got %d cuts and %d pairs", n, len(lib.Pairs))
			}
			continue
		}
		if n != 0 {
			t.Fatalf("A junction spanned by %d pairs must not be cut", spanning)
		}
		if len(lib.Pairs) != spanning+1 || g.Stats.ErroneousPairs != 3 {
			t.Fatalf("Expected the 3 erroneous pairs deleted, got %d pairs and %d deletions",
				len(lib.Pairs), g.Stats.ErroneousPairs)
		}
		for _, p := range lib.Pairs[:spanning] {
			if p.Mate1.Pos != 800 {
				t.Fatalf("Unexpected pair left %v", p)
			}
		}
	}
}

func TestScaffoldsOrder(t *testing.T) {
	g := newTestGraph(t, []int{300, 1000, 1000, 100}, []uint16{30, 30, 30, 30}, []*Library{testLibrary()})
	scaffolds := g.Scaffolds(200)
	if len(scaffolds) != 3 {
		t.Fatalf("Expected 3 scaffolds above 200bp, got %d", len(scaffolds))
	}
	if firstContig(scaffolds[0].Parts) != 1 || firstContig(scaffolds[1].Parts) != 2 ||
		firstContig(scaffolds[2].Parts) != 0 {
		t.Fatal("Scaffolds are expected by length, then by first contig")
	}
	if scaffolds[0].Name != "scaffold1" || scaffolds[2].Name != "scaffold3" {
		t.Fatal("Scaffolds are expected to be numbered in output order")
	}
}

func TestMakeDot(t *testing.T) {
	g := newTestGraph(t, []int{1000, 1000}, []uint16{30, 30}, []*Library{testLibrary()})
	g.MakeGraph([]aggregatedEdge{link(0, 1, 1, 1, 30, 200)})
	dot, err := g.MakeDot()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dot, "digraph") || !strings.Contains(dot, "n0") || !strings.Contains(dot, "n1") {
		t.Fatalf("Unexpected dot output %s", dot)
	}
}

func TestBandedEditDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		band     int
		expected int
	}{
		{"ACGT", "ACGT", 2, 0},
		{"ACGT", "AGGT", 2, 1},
		{"ACGT", "ACG", 2, 1},
		{"ANGT", "ACGT", 2, 0},
		{"AAAA", "A", 1, 4},
		{"", "", 0, 0},
	}
	for _, tt := range tests {
		got := bandedEditDistance([]byte(tt.a), []byte(tt.b), tt.band)
		if got != tt.expected {
			t.Errorf("bandedEditDistance(%s, %s, %d) = %d; want %d", tt.a, tt.b, tt.band, got, tt.expected)
		}
	}
}
