/*
 *  cli.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/20/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// banner prints the separate steps
func banner(message string) {
	message = "* " + message + " *"
	log.Noticef(strings.Repeat("*", len(message)))
	log.Noticef(message)
	log.Noticef(strings.Repeat("*", len(message)))
}

// Logo banner (Varsity style)
const logo = `
  ______   ______        _       ________  ________
.' ____ \.' ___  |      / \     |_   __  ||_   __  |
| (___ \_/ .'   \_|    / _ \      | |_ \_|  | |_ \_|
 _.____'.| |          / ___ \     |  _|     |  _|
| \____) \ '.___.'\ _/ /   \ \_  _| |_     _| |_
 \______.''.____ .'|____| |____||_____|   |_____|
`

// addTunables declares the flags shared with the config file
func addTunables(cmd *cobra.Command) {
	c := DefaultConfig()
	f := cmd.Flags()
	f.StringP("contigs", "c", "", "Contig FASTA file")
	f.String("paf", "", "PAF self-alignment of the contigs, dovetails become overlap hints")
	f.StringP("out", "o", c.OutPrefix, "Prefix of the output files")
	f.String("tmp-dir", c.TmpDir, "Directory of the scratch files")
	f.Int64("min-link", c.MinLink, "Minimum number of links to keep an edge")
	f.Int64("min-overlap", c.MinOverlap, "Minimum overlap between contig ends")
	f.Int64("max-overlap", c.MaxOverlap, "Maximum overlap between contig ends")
	f.Int64("tolerence", c.Tolerence, "Admissible gap deviation, 0 derives it from the library")
	f.Int64("min-tolerence-factor", c.MinTolerenceFactor, "Floor of the tolerence in units of seed length")
	f.Int64("seed-length", c.SeedLength, "Seed length used when the contigs were assembled")
	f.Float64("bubble-threshold", c.BubbleThreshold, "Max divergence between two bubble arms to crush them")
	f.Int64("min-seq-length", c.MinSeqLength, "Minimum length of the scaffolds written out")
	f.IntP("threads", "t", c.NumThread, "Number of threads")
	f.Float64("average-coverage", c.AverageCoverage, "Average coverage of the contigs, 0 derives it from the contigs")
	f.Bool("crush-bubble", c.CrushBubble, "Crush bubbles")
	f.String("dot", "", "Write the cleaned graph of the last round in Graphviz format")
	f.String("edges", "", "Write the aggregated edges of each round")
	f.Bool("progress", false, "Show a progress bar while reading BAM files")
}

// addLibraryFlags declares the repeated library flags
func addLibraryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceP("bam", "b", nil, "BAM file of the pairs of a library, repeat for more libraries")
	f.StringSlice("pairs", nil, "Pairs file of a library, repeat for more libraries")
	f.Float64Slice("insert", nil, "Average insert size of each library, estimated when missing")
	f.Float64Slice("sd", nil, "Insert size deviation of each library, estimated when missing")
}

// librariesFromFlags makes one library per --bam and --pairs flag
func librariesFromFlags(cmd *cobra.Command) ([]LibraryConfig, error) {
	f := cmd.Flags()
	bams, _ := f.GetStringSlice("bam")
	pairs, _ := f.GetStringSlice("pairs")
	inserts, _ := f.GetFloat64Slice("insert")
	sds, _ := f.GetFloat64Slice("sd")
	var libs []LibraryConfig
	for _, bam := range bams {
		libs = append(libs, LibraryConfig{Name: RemoveExt(bam), Bam: bam})
	}
	for _, p := range pairs {
		libs = append(libs, LibraryConfig{Name: RemoveExt(p), Pairs: p})
	}
	if len(inserts) > len(libs) || len(sds) > len(libs) {
		return nil, fmt.Errorf("more --insert/--sd values than libraries")
	}
	for i := range inserts {
		libs[i].AvgInsert = inserts[i]
	}
	for i := range sds {
		libs[i].SdInsert = sds[i]
	}
	return libs, nil
}

// loadConfig merges defaults, config file and flags
func loadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	configFile, _ := cmd.Flags().GetString("config")
	c, err := LoadConfig(v, configFile)
	if err != nil {
		return c, err
	}
	libs, err := librariesFromFlags(cmd)
	if err != nil {
		return c, err
	}
	if len(libs) > 0 {
		c.Libraries = libs
	}
	return c, c.Validate()
}

// newScaffoldCmd runs the whole pipeline
func newScaffoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Scaffold contigs with paired-end libraries",
		Long: `Scaffold builds a graph of the contigs from the read pairs of each library,
removes repeats, erroneous edges and bubbles, and writes the scaffolds with
estimated gaps. Libraries are used in ascending order of insert size.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			r := Scaffolder{Config: c}
			return r.Run(ctx)
		},
	}
	cmd.Flags().String("config", "", "YAML config file, flags take precedence")
	addTunables(cmd)
	addLibraryFlags(cmd)
	return cmd
}

// newInsertCmd estimates the insert size of libraries
func newInsertCmd() *cobra.Command {
	var npy bool
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Estimate the insert size distribution of libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r := Scaffolder{Config: c}
			if err := r.LoadInputs(); err != nil {
				return err
			}
			for _, lib := range r.Libraries {
				lib.AvgInsert = 0
				model, err := EstimateInsertSize(lib)
				if err != nil {
					return err
				}
				if err := model.WriteFiles(c.OutPrefix+"_"+lib.Name, npy); err != nil {
					return err
				}
				fmt.Printf("%s\t%.1f\t%.1f\t%.1f\n", lib.Name, lib.AvgInsert, lib.SdInsert, lib.AvgReadLength)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "YAML config file, flags take precedence")
	cmd.Flags().BoolVar(&npy, "npy", false, "Also dump the raw insert sizes as a numpy array")
	addTunables(cmd)
	addLibraryFlags(cmd)
	return cmd
}

// newOverlapCmd lists the overlaps between contig ends
func newOverlapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlap",
		Short: "Detect the suffix/prefix overlaps between contig ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r := Scaffolder{Config: c}
			if err := r.LoadInputs(); err != nil {
				return err
			}
			overlaps := NewOverlapIndex()
			if err := overlaps.SaveOverlap(context.Background(), r.Contigs, r.Hints,
				c.MinOverlap, c.MaxOverlap, c.NumThread); err != nil {
				return err
			}
			for _, ov := range overlaps.Overlaps() {
				fmt.Printf("%s%c\t%s%c\t%d\n",
					r.Contigs.Contigs[ov.A.ID].Name, strandChar(ov.A.Strand),
					r.Contigs.Contigs[ov.B.ID].Name, strandChar(ov.B.Strand), ov.Length)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "YAML config file, flags take precedence")
	addTunables(cmd)
	return cmd
}

// newExtractCmd converts BAM files into pairs files
func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract bamfile...",
		Short: "Convert BAM files into pairs files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fastafile, _ := cmd.Flags().GetString("contigs")
			progress, _ := cmd.Flags().GetBool("progress")
			contigs, err := ReadContigs(fastafile)
			if err != nil {
				return err
			}
			for _, bamfile := range args {
				pairs, err := ReadBamPairs(bamfile, contigs, progress)
				if err != nil {
					return err
				}
				if err := WritePairsFile(RemoveExt(bamfile)+".pairs.txt", pairs, contigs); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("contigs", "c", "", "Contig FASTA file")
	cmd.Flags().Bool("progress", false, "Show a progress bar while reading BAM files")
	cmd.MarkFlagRequired("contigs")
	return cmd
}

// Execute runs the command line
func Execute() error {
	rootCmd := &cobra.Command{
		Use:     "scaffolder",
		Short:   "Genome scaffolding based on paired-end libraries",
		Long:    logo + "\nGenome scaffolding based on paired-end libraries",
		Version: Version,
	}
	rootCmd.AddCommand(newScaffoldCmd(), newInsertCmd(), newOverlapCmd(), newExtractCmd())
	return rootCmd.Execute()
}
