/*
Copyright © 2025 Godwin Mafireyi (mafireyi@gmail.com)
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amplicon-whisperer",
	Short: "A DADA2-based amplicon denoising pipeline",
	Long: `Runs a paired-end 16S rRNA amplicon workflow end to end:
1.	Sample discovery & quality filtering
2.	Error model learning & sample denoising (DADA2)
3.	Read-pair merging & chimera removal
4.	Read tracking report
5.	Taxonomy assignment against a reference training set
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file ")
}
