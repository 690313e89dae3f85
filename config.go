/*
 *  config.go
 *  scaffolder
 *
 *  Created by Haibao Tang on 03/07/20
 *  Copyright © 2020 Haibao Tang. All rights reserved.
 */

package scaffolder

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

// LibraryConfig describes one paired-end library. Mapped pairs come either from a
// BAM file or a pairs file. Zero statistics are estimated from the data.
type LibraryConfig struct {
	Name       string  `mapstructure:"name"`
	Bam        string  `mapstructure:"bam"`
	Pairs      string  `mapstructure:"pairs"`
	AvgInsert  float64 `mapstructure:"insert"`
	SdInsert   float64 `mapstructure:"sd"`
	ReadLength float64 `mapstructure:"read-length"`
	Coverage   float64 `mapstructure:"coverage"`
}

// Config is the root-level settings struct, a mix of settings from the
// optional config file and those from the command line
type Config struct {
	// Input contigs in FASTA
	Contigs string `mapstructure:"contigs"`
	// Optional PAF self-alignment of the contigs, dovetails become overlap hints
	Paf string `mapstructure:"paf"`
	// Paired-end libraries
	Libraries []LibraryConfig `mapstructure:"libraries"`
	// Prefix of all output files
	OutPrefix string `mapstructure:"out"`
	// Directory of the scratch files
	TmpDir string `mapstructure:"tmp-dir"`

	// Minimum number of links to keep an edge
	MinLink int64 `mapstructure:"min-link"`
	// Minimum overlap between contig ends to be detected
	MinOverlap int64 `mapstructure:"min-overlap"`
	// Maximum overlap between contig ends
	MaxOverlap int64 `mapstructure:"max-overlap"`
	// Admissible gap deviation, 0 derives it from the library
	Tolerence int64 `mapstructure:"tolerence"`
	// Floor of the tolerence in units of seed length
	MinTolerenceFactor int64 `mapstructure:"min-tolerence-factor"`
	// Seed length used when the contigs were assembled
	SeedLength int64 `mapstructure:"seed-length"`
	// Max divergence between two bubble arms to crush them
	BubbleThreshold float64 `mapstructure:"bubble-threshold"`
	// Minimum length of the scaffolds written out
	MinSeqLength int64 `mapstructure:"min-seq-length"`
	// Number of threads
	NumThread int `mapstructure:"threads"`
	// Average coverage of the contigs, 0 derives it from the contigs
	AverageCoverage float64 `mapstructure:"average-coverage"`
	// Whether to crush bubbles
	CrushBubble bool `mapstructure:"crush-bubble"`

	// Optional outputs
	DotFile  string `mapstructure:"dot"`
	EdgeFile string `mapstructure:"edges"`
	Progress bool   `mapstructure:"progress"`
}

// DefaultConfig returns the settings used when nothing is specified
func DefaultConfig() Config {
	return Config{
		OutPrefix:          "out",
		TmpDir:             os.TempDir(),
		MinLink:            3,
		MinOverlap:         32,
		MaxOverlap:         100,
		MinTolerenceFactor: 2,
		SeedLength:         32,
		BubbleThreshold:    0.1,
		MinSeqLength:       200,
		NumThread:          runtime.NumCPU(),
		CrushBubble:        true,
	}
}

// SetDefaults registers the defaults with viper so that flags, config file and
// defaults are merged in the usual order
func SetDefaults(v *viper.Viper) {
	c := DefaultConfig()
	v.SetDefault("out", c.OutPrefix)
	v.SetDefault("tmp-dir", c.TmpDir)
	v.SetDefault("min-link", c.MinLink)
	v.SetDefault("min-overlap", c.MinOverlap)
	v.SetDefault("max-overlap", c.MaxOverlap)
	v.SetDefault("tolerence", c.Tolerence)
	v.SetDefault("min-tolerence-factor", c.MinTolerenceFactor)
	v.SetDefault("seed-length", c.SeedLength)
	v.SetDefault("bubble-threshold", c.BubbleThreshold)
	v.SetDefault("min-seq-length", c.MinSeqLength)
	v.SetDefault("threads", c.NumThread)
	v.SetDefault("average-coverage", c.AverageCoverage)
	v.SetDefault("crush-bubble", c.CrushBubble)
}

// LoadConfig reads the optional config file and unmarshals everything viper knows
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	var c Config
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("cannot read config `%s`: %w", configFile, err)
		}
		log.Noticef("Using config file `%s`", v.ConfigFileUsed())
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("unable to decode config: %w", err)
	}
	return c, nil
}

// Validate fails fast on inconsistent tunables
func (c *Config) Validate() error {
	if c.MinLink < 1 {
		return fmt.Errorf("min-link must be at least 1, got %d", c.MinLink)
	}
	if c.MinOverlap < 0 || c.MaxOverlap < 0 {
		return fmt.Errorf("overlaps must be non-negative, got min %d max %d", c.MinOverlap, c.MaxOverlap)
	}
	if c.MaxOverlap > 0 && c.MinOverlap > c.MaxOverlap {
		return fmt.Errorf("min-overlap %d exceeds max-overlap %d", c.MinOverlap, c.MaxOverlap)
	}
	if c.Tolerence < 0 || c.MinTolerenceFactor < 0 || c.SeedLength < 0 {
		return fmt.Errorf("tolerence settings must be non-negative")
	}
	if c.BubbleThreshold < 0 || c.BubbleThreshold >= 1 {
		return fmt.Errorf("bubble-threshold must be in [0, 1), got %v", c.BubbleThreshold)
	}
	if c.MinSeqLength < 0 {
		return fmt.Errorf("min-seq-length must be non-negative, got %d", c.MinSeqLength)
	}
	if c.NumThread < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.NumThread)
	}
	if c.AverageCoverage < 0 {
		return fmt.Errorf("average-coverage must be non-negative, got %v", c.AverageCoverage)
	}
	for i, lib := range c.Libraries {
		if lib.Bam == "" && lib.Pairs == "" {
			return fmt.Errorf("library %d has neither bam nor pairs file", i+1)
		}
		if lib.AvgInsert < 0 || lib.SdInsert < 0 || lib.ReadLength < 0 || lib.Coverage < 0 {
			return fmt.Errorf("library %d has negative statistics", i+1)
		}
	}
	return nil
}
