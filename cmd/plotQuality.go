/*
Copyright © 2025 Godwin Mafireyi (mafireyi@gmail.com)
*/
package cmd

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmaffy/amplicon-whisperer/amplicon"
)

// plotQualityCmd represents the plotQuality command
var plotQualityCmd = &cobra.Command{
	Use:   "plotQuality -f <fastq file> [args]",
	Short: "Plots the per-cycle quality profile of a read file",
	Long: `Aggregates per-cycle quality scores (mean and quartiles) of a
FASTQ file and renders them as an HTML line chart. Use it to pick the
truncQ and maxEE filtering parameters before a run.`,
	Run: func(cmd *cobra.Command, args []string) {
		fastqFile, fErr := cmd.Flags().GetString("fastq")
		if fErr != nil {
			log.Fatalf("Error getting fastq flag: %v", fErr)
		}

		outFile, oErr := cmd.Flags().GetString("out")
		if oErr != nil {
			log.Fatalf("Error getting out flag: %v", oErr)
		}

		maxReads, mErr := cmd.Flags().GetInt("max_reads")
		if mErr != nil {
			log.Fatalf("Error getting max_reads flag: %v", mErr)
		}

		if fastqFile == "" {
			log.Fatal("Please provide a fastq file with -f")
		}
		if outFile == "" {
			base := filepath.Base(fastqFile)
			base = strings.TrimSuffix(strings.TrimSuffix(base, ".gz"), ".fastq")
			outFile = base + ".quality.html"
		}

		fmt.Printf("Profiling quality of %s ...\n\n", fastqFile)
		profile, pErr := amplicon.ProfileQuality(fastqFile, maxReads)
		if pErr != nil {
			log.Fatalf("Error profiling %s: %v", fastqFile, pErr)
		}

		if plotErr := amplicon.PlotQualityProfile(profile, filepath.Base(fastqFile), outFile); plotErr != nil {
			log.Fatalf("Error writing chart: %v", plotErr)
		}
		fmt.Printf("Quality profile saved at: %s\n", outFile)
	},
}

func init() {
	rootCmd.AddCommand(plotQualityCmd)

	plotQualityCmd.Flags().StringP("fastq", "f", "", "read file to profile (fastq or fastq.gz)")
	plotQualityCmd.Flags().StringP("out", "o", "", "output html file")
	plotQualityCmd.Flags().Int("max_reads", 10000, "number of reads to sample (0 = all)")
}
