/*
 *  dot.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/16/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"fmt"
	"os"

	"github.com/awalterschulze/gographviz"
)

// MakeDot renders the current graph in Graphviz format. Each adjacency is drawn
// once, from the node whose 3' end it leaves.
func (r *Graph) MakeDot() (string, error) {
	G := gographviz.NewGraph()
	if err := G.SetName("G"); err != nil {
		return "", err
	}
	if err := G.SetDir(true); err != nil {
		return "", err
	}
	for u := range r.Nodes {
		node := &r.Nodes[u]
		if !node.isActive() || (len(node.Edge) == 0 && node.State&StateRepeat == 0) {
			continue
		}
		attrs := map[string]string{
			"label": fmt.Sprintf(`"%s\n%dbp cov=%.1f"`, r.nodeName(u), node.Length, r.NodeCoverage(u)),
		}
		if node.State&StateRepeat != 0 {
			attrs["color"] = "red"
		} else if !node.IsHomo {
			attrs["color"] = "blue"
		}
		if err := G.AddNode("G", nodeID(u), attrs); err != nil {
			return "", err
		}
	}
	for u := range r.Nodes {
		for _, direction := range []int8{1, -1} {
			for _, layout := range r.LayoutNodes(u, direction) {
				e := &GraphEdge{Direction: direction, End: layout.Node, Strand: layout.Strand}
				mirror := e.mirrorOf(u)
				// Draw each adjacency from one side only
				if direction < 0 && mirror.Direction > 0 {
					continue
				}
				if direction == mirror.Direction && layout.Node < u {
					continue
				}
				src, dst := nodeID(u), nodeID(layout.Node)
				if direction < 0 {
					src, dst = dst, src
				}
				attrs := map[string]string{
					"label": fmt.Sprintf(`"%d (%d)"`, layout.NumLink, layout.Distance),
				}
				if layout.Strand < 0 {
					attrs["style"] = "dashed"
				}
				if err := G.AddEdge(src, dst, true, attrs); err != nil {
					return "", err
				}
			}
		}
	}
	return G.String(), nil
}

// nodeID names a node in the dot file
func nodeID(u int) string {
	return fmt.Sprintf("n%d", u)
}

// WriteDot saves the graph in Graphviz format
func (r *Graph) WriteDot(filename string) error {
	dot, err := r.MakeDot()
	if err != nil {
		return fmt.Errorf("cannot render graph: %w", err)
	}
	if err := os.WriteFile(filename, []byte(dot), 0644); err != nil {
		return fmt.Errorf("cannot write `%s`: %w", filename, err)
	}
	log.Noticef("Graph written to `%s`", filename)
	return nil
}
