package utils

import (
	"bufio"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type Config struct {
	InputDir      string
	OutputDir     string
	ForwardSuffix string
	ReverseSuffix string

	TruncQ          int
	MaxN            int
	MaxEEForward    float64
	MaxEEReverse    float64
	RemovePhix      bool
	PhixFasta       string
	PoolMode        string
	MinOverlap      int
	MaxMismatch     int
	MaxMergedLength int
	ChimeraMethod   string

	ReferenceDB string
	MaxRank     string
	MinBoot     int

	Threads int
}

// DefaultConfig carries the parameter defaults of a standard V3-V4 16S run.
func DefaultConfig() Config {
	return Config{
		ForwardSuffix:   "_1.fastq.gz",
		ReverseSuffix:   "_2.fastq.gz",
		TruncQ:          2,
		MaxN:            0,
		MaxEEForward:    5,
		MaxEEReverse:    2,
		RemovePhix:      true,
		PoolMode:        "pseudo",
		MinOverlap:      12,
		MaxMismatch:     0,
		MaxMergedLength: 450,
		ChimeraMethod:   "consensus",
		MaxRank:         "Genus",
		MinBoot:         50,
		Threads:         8,
	}
}

func ReadConfig(configPath string) (Config, error) {
	configFile, err := os.Open(configPath)
	if err != nil {
		return Config{}, err
	}
	defer configFile.Close()
	cfg := DefaultConfig()

	scanner := bufio.NewScanner(configFile)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "InputDir":
			cfg.InputDir = value
		case "OutputDir":
			cfg.OutputDir = value
		case "forward_suffix":
			cfg.ForwardSuffix = value
		case "reverse_suffix":
			cfg.ReverseSuffix = value
		case "truncQ":
			cfg.TruncQ = atoi(value, cfg.TruncQ)
		case "maxN":
			cfg.MaxN = atoi(value, cfg.MaxN)
		case "maxEE_forward":
			cfg.MaxEEForward = atof(value, cfg.MaxEEForward)
		case "maxEE_reverse":
			cfg.MaxEEReverse = atof(value, cfg.MaxEEReverse)
		case "remove_phix":
			cfg.RemovePhix = strings.EqualFold(value, "true")
		case "phix_fasta":
			cfg.PhixFasta = value
		case "pool_mode":
			cfg.PoolMode = value
		case "min_overlap":
			cfg.MinOverlap = atoi(value, cfg.MinOverlap)
		case "max_mismatch":
			cfg.MaxMismatch = atoi(value, cfg.MaxMismatch)
		case "max_merged_length":
			cfg.MaxMergedLength = atoi(value, cfg.MaxMergedLength)
		case "chimera_method":
			cfg.ChimeraMethod = value
		case "reference_db":
			cfg.ReferenceDB = value
		case "max_rank":
			cfg.MaxRank = value
		case "min_boot":
			cfg.MinBoot = atoi(value, cfg.MinBoot)
		case "threads":
			cfg.Threads = atoi(value, cfg.Threads)
		}
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func atoi(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func atof(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func RunBashCmdVerbose(cmdStr string) error {
	cmd := exec.Command("bash", "-c", cmdStr)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return err
	}
	return nil
}

// CheckDeps verifies that Rscript and the dada2 R package are reachable
// before any stage runs.
func CheckDeps() error {
	if _, err := exec.LookPath("Rscript"); err != nil {
		return err
	}
	cmd := exec.Command("Rscript", "-e", `suppressMessages(library(dada2))`)
	return cmd.Run()
}
