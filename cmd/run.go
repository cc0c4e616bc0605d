/*
Copyright © 2025 Godwin Mafireyi (mafireyi@gmail.com)
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gmaffy/amplicon-whisperer/amplicon"
	"github.com/gmaffy/amplicon-whisperer/dada2"
	"github.com/gmaffy/amplicon-whisperer/utils"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run -i <reads dir> -o <output dir> [args]",
	Short: "Runs the amplicon pipeline end to end, or resumes it from a stage",
	Long: `Runs the full pipeline: discovery, filtering, error learning,
denoising, merging, chimera removal, read tracking and taxonomy.
Each stage checkpoints its output to the results directory. After a
failure, re-invoke with --results_dir pointing at the same directory and
(optionally) --resume_from <stage> to restart from there.`,
	Run: func(cmd *cobra.Command, args []string) {

		fmt.Printf("Checking dependencies ...\n\n")

		if err := utils.CheckDeps(); err != nil {
			log.Fatalf("Dependency check failed: %v", err)
		}

		fmt.Printf("Dependencies OK\n\n----------------------------------------------------------\n\n")

		inputDir, inErr := cmd.Flags().GetString("input")
		if inErr != nil {
			log.Fatalf("Error getting input flag: %v", inErr)
		}

		outputDir, outErr := cmd.Flags().GetString("out")
		if outErr != nil {
			log.Fatalf("Error getting out flag: %v", outErr)
		}

		resultsDir, rdErr := cmd.Flags().GetString("results_dir")
		if rdErr != nil {
			log.Fatalf("Error getting results_dir flag: %v", rdErr)
		}

		resumeFrom, rfErr := cmd.Flags().GetString("resume_from")
		if rfErr != nil {
			log.Fatalf("Error getting resume_from flag: %v", rfErr)
		}

		poolMode, pmErr := cmd.Flags().GetString("pool_mode")
		if pmErr != nil {
			log.Fatalf("Error getting pool_mode flag: %v", pmErr)
		}

		referenceDB, refErr := cmd.Flags().GetString("reference_db")
		if refErr != nil {
			log.Fatalf("Error getting reference_db flag: %v", refErr)
		}

		maxRank, mrErr := cmd.Flags().GetString("max_rank")
		if mrErr != nil {
			log.Fatalf("Error getting max_rank flag: %v", mrErr)
		}

		threads, tErr := cmd.Flags().GetInt("threads")
		if tErr != nil {
			log.Fatalf("Error getting threads flag: %v", tErr)
		}

		cfg := utils.DefaultConfig()
		if cfgFile != "" {
			var cfgErr error
			cfg, cfgErr = utils.ReadConfig(cfgFile)
			if cfgErr != nil {
				log.Fatalf("Error reading config file: %v", cfgErr)
			}
		}
		if inputDir != "" {
			cfg.InputDir = inputDir
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if poolMode != "" {
			cfg.PoolMode = poolMode
		}
		if referenceDB != "" {
			cfg.ReferenceDB = referenceDB
		}
		if maxRank != "" {
			cfg.MaxRank = maxRank
		}
		if threads > 0 {
			cfg.Threads = threads
		}

		if cfg.InputDir == "" {
			log.Fatal("Please provide a reads directory with -i or InputDir in the config file")
		}
		if cfg.OutputDir == "" {
			log.Fatal("Please provide an output directory with -o or OutputDir in the config file")
		}
		if cfg.ReferenceDB == "" {
			log.Fatal("Please provide a taxonomy training set with --reference_db or reference_db in the config file")
		}

		inInfo, inStatErr := os.Stat(cfg.InputDir)
		if inStatErr != nil {
			log.Fatalf("Reads directory %s is not a valid path: %v", cfg.InputDir, inStatErr)
		}
		if !inInfo.IsDir() {
			log.Fatalf("Reads directory %s is not a directory", cfg.InputDir)
		}
		if _, refStatErr := os.Stat(cfg.ReferenceDB); refStatErr != nil {
			log.Fatalf("Reference training set %s is not a valid path: %v", cfg.ReferenceDB, refStatErr)
		}

		if resultsDir == "" {
			if resumeFrom != "" {
				log.Fatal("--resume_from needs --results_dir pointing at the checkpoints of the interrupted run")
			}
			var cdErr error
			resultsDir, cdErr = amplicon.CreateResultsDir(cfg.OutputDir)
			if cdErr != nil {
				log.Fatalf("Error creating results directory: %v", cdErr)
			}
		}

		lib, libErr := dada2.NewLibrary(filepath.Join(resultsDir, "dada2"))
		if libErr != nil {
			log.Fatalf("Error setting up dada2 work directory: %v", libErr)
		}

		pipe, pErr := amplicon.NewPipeline(cfg, lib, resultsDir)
		if pErr != nil {
			log.Fatalf("Error setting up pipeline: %v", pErr)
		}
		defer pipe.Close()

		stage := amplicon.StageDiscovery
		if resumeFrom != "" {
			var sErr error
			stage, sErr = amplicon.ParseStage(resumeFrom)
			if sErr != nil {
				log.Fatalf("Error parsing resume_from flag: %v", sErr)
			}
		}

		if runErr := pipe.RunFrom(stage); runErr != nil {
			log.Fatalf("Pipeline failed: %v", runErr)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	// ------------------------------------------------ PATHS ------------------------------------------------------ //
	runCmd.Flags().StringP("input", "i", "", "directory with paired read files (<SampleID>_1.fastq.gz / <SampleID>_2.fastq.gz)")
	runCmd.Flags().StringP("out", "o", "", "output directory")
	runCmd.Flags().String("results_dir", "", "existing results directory to reuse (required for resume)")
	runCmd.Flags().String("reference_db", "", "path to taxonomy classifier training set")

	// ----------------------------------------------- RESUME ------------------------------------------------------ //
	runCmd.Flags().String("resume_from", "", "stage to resume from: discovery, filter, error-model, denoise, merge, chimera, track, taxonomy")

	// ----------------------------------------------- PARAMS ------------------------------------------------------ //
	runCmd.Flags().StringP("pool_mode", "p", "", "denoising pool mode: independent, pooled or pseudo")
	runCmd.Flags().String("max_rank", "", "deepest taxonomic rank to assign (default Genus)")
	runCmd.Flags().Int("threads", 0, "parallelism budget passed to every stage")
}
