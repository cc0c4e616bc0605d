package amplicon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
	"github.com/gmaffy/amplicon-whisperer/utils"
)

// Pipeline runs the eight stages strictly in sequence, checkpointing each
// stage's product to the results directory the moment it exists. Stages
// already recorded as COMPLETED in the run log are reloaded from their
// checkpoints instead of recomputed, which is also how an operator
// resumes after an external-capability failure.
type Pipeline struct {
	Cfg  utils.Config
	Lib  seqlib.SequenceAnalysis
	Ckpt Checkpoints

	logger         *slog.Logger
	logFile        *os.File
	logPath        string
	completed      map[string]string
	lastCheckpoint string
}

// CreateResultsDir makes a timestamped run directory under outputDir.
func CreateResultsDir(outputDir string) (string, error) {
	baseDir := filepath.Join(outputDir, "ampliconResults")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", err
	}

	now := time.Now()
	resultsDir := filepath.Join(baseDir, fmt.Sprintf("%02d_%02d_%04d_%02d_%02d_%02d", now.Day(), now.Month(), now.Year(), now.Hour(), now.Minute(), now.Second()))
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return "", err
	}
	fmt.Printf("Created results directory at %s ..\n\n", resultsDir)
	return resultsDir, nil
}

func NewPipeline(cfg utils.Config, lib seqlib.SequenceAnalysis, resultsDir string) (*Pipeline, error) {
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return nil, err
	}
	logPath := filepath.Join(resultsDir, "run.log")
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}

	logger := slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	return &Pipeline{
		Cfg:       cfg,
		Lib:       lib,
		Ckpt:      Checkpoints{Dir: resultsDir},
		logger:    logger,
		logFile:   logFile,
		logPath:   logPath,
		completed: utils.CompletedStages(logPath),
	}, nil
}

func (p *Pipeline) Close() error { return p.logFile.Close() }

// Run executes the whole pipeline from the top.
func (p *Pipeline) Run() error { return p.RunFrom(StageDiscovery) }

// RunFrom resumes at the named stage. Every prerequisite checkpoint must
// exist and the checkpoints must agree on one SampleID set before any
// stage runs.
func (p *Pipeline) RunFrom(from Stage) error {
	if from > StageDiscovery {
		fmt.Printf("Resuming from stage %s, validating checkpoints ...\n\n", from)
		if err := p.Ckpt.ValidateResume(from); err != nil {
			return err
		}
	}

	var (
		pairs         []seqlib.ReadFilePair
		filteredPairs []seqlib.ReadFilePair
		stats         []seqlib.FilterStats
		errModelF     seqlib.ErrorModel
		errModelR     seqlib.ErrorModel
		denoisedF     map[string]seqlib.DenoisedSample
		denoisedR     map[string]seqlib.DenoisedSample
		merged        map[string]seqlib.MergedSample
		matrix        *seqlib.AbundanceMatrix
		cleaned       *seqlib.AbundanceMatrix
	)

	// ================================================ Discovery ================================================= //
	err := p.stage(from, StageDiscovery, func() error {
		var dErr error
		pairs, dErr = DiscoverSamples(p.Cfg.InputDir, p.Cfg.ForwardSuffix, p.Cfg.ReverseSuffix)
		if dErr != nil {
			return dErr
		}
		fmt.Printf("Found %d sample pairs in %s\n\n", len(pairs), p.Cfg.InputDir)
		return p.save(ckptSamples, pairs)
	}, func() error {
		return p.Ckpt.LoadJSON(ckptSamples, &pairs)
	})
	if err != nil {
		return err
	}

	// ================================================= Filtering ================================================ //
	err = p.stage(from, StageFilter, func() error {
		fCfg := seqlib.FilterConfig{
			TruncQ:       p.Cfg.TruncQ,
			MaxN:         p.Cfg.MaxN,
			MaxEEForward: p.Cfg.MaxEEForward,
			MaxEEReverse: p.Cfg.MaxEEReverse,
			RemovePhix:   p.Cfg.RemovePhix,
			PhixFasta:    p.Cfg.PhixFasta,
			OutputDir:    p.Ckpt.Dir,
			Threads:      p.Cfg.Threads,
		}
		var fErr error
		filteredPairs, stats, fErr = p.Lib.FilterReads(pairs, fCfg)
		if fErr != nil {
			return fErr
		}
		if len(filteredPairs) < len(pairs) {
			p.logger.Warn("PIPELINE", "STAGE", StageFilter.String(), "SKIPPED_SAMPLES", len(pairs)-len(filteredPairs))
		}
		if err := p.save(ckptFilterPairs, filteredPairs); err != nil {
			return err
		}
		return p.save(ckptFilterStats, stats)
	}, func() error {
		if err := p.Ckpt.LoadJSON(ckptFilterPairs, &filteredPairs); err != nil {
			return err
		}
		return p.Ckpt.LoadJSON(ckptFilterStats, &stats)
	})
	if err != nil {
		return err
	}

	fwdFiles := make([]string, len(filteredPairs))
	revFiles := make([]string, len(filteredPairs))
	for i, pr := range filteredPairs {
		fwdFiles[i] = pr.Forward
		revFiles[i] = pr.Reverse
	}

	// =============================================== Error models =============================================== //
	err = p.stage(from, StageErrorModel, func() error {
		var eErr error
		errModelF, eErr = p.Lib.LearnErrorModel(fwdFiles, seqlib.Forward, p.Cfg.Threads)
		if eErr != nil {
			return eErr
		}
		if err := p.save(ckptErrModelF, errModelF); err != nil {
			return err
		}
		errModelR, eErr = p.Lib.LearnErrorModel(revFiles, seqlib.Reverse, p.Cfg.Threads)
		if eErr != nil {
			return eErr
		}
		return p.save(ckptErrModelR, errModelR)
	}, func() error {
		if err := p.Ckpt.LoadJSON(ckptErrModelF, &errModelF); err != nil {
			return err
		}
		return p.Ckpt.LoadJSON(ckptErrModelR, &errModelR)
	})
	if err != nil {
		return err
	}

	// ================================================ Denoising ================================================= //
	err = p.stage(from, StageDenoise, func() error {
		mode := seqlib.PoolMode(p.Cfg.PoolMode)
		switch mode {
		case seqlib.PoolIndependent, seqlib.PoolPooled, seqlib.PoolPseudo:
		default:
			return fmt.Errorf("invalid pool mode %q", p.Cfg.PoolMode)
		}
		var dErr error
		denoisedF, dErr = p.Lib.Denoise(fwdFiles, errModelF, mode, p.Cfg.Threads)
		if dErr != nil {
			return dErr
		}
		// Each direction goes under its own checkpoint key.
		if err := p.save(ckptDenoisedF, denoisedF); err != nil {
			return err
		}
		denoisedR, dErr = p.Lib.Denoise(revFiles, errModelR, mode, p.Cfg.Threads)
		if dErr != nil {
			return dErr
		}
		return p.save(ckptDenoisedR, denoisedR)
	}, func() error {
		if err := p.Ckpt.LoadJSON(ckptDenoisedF, &denoisedF); err != nil {
			return err
		}
		return p.Ckpt.LoadJSON(ckptDenoisedR, &denoisedR)
	})
	if err != nil {
		return err
	}

	// ================================================== Merging ================================================= //
	err = p.stage(from, StageMerge, func() error {
		mCfg := seqlib.MergeConfig{
			MinOverlap:  p.Cfg.MinOverlap,
			MaxMismatch: p.Cfg.MaxMismatch,
			Threads:     p.Cfg.Threads,
		}
		var mErr error
		merged, mErr = p.Lib.MergePairs(denoisedF, denoisedR, fwdFiles, revFiles, mCfg)
		if mErr != nil {
			return mErr
		}
		if err := p.save(ckptMerged, merged); err != nil {
			return err
		}

		var lengthStats LengthStats
		matrix, lengthStats = BuildAbundanceMatrix(merged, p.Cfg.MaxMergedLength)
		if lengthStats.DroppedVariants > 0 {
			fmt.Printf("Dropped %d merged variants (%d reads) longer than %d bases\n\n", lengthStats.DroppedVariants, lengthStats.DroppedReads, p.Cfg.MaxMergedLength)
			p.logger.Warn("PIPELINE", "STAGE", StageMerge.String(), "DROPPED_TOO_LONG", lengthStats.DroppedVariants, "DROPPED_READS", lengthStats.DroppedReads)
		}
		if err := p.save(ckptLengthStats, lengthStats); err != nil {
			return err
		}
		if err := seqlib.WriteMatrixTSV(matrix, p.Ckpt.Path(ckptSeqTab)); err != nil {
			return err
		}
		p.lastCheckpoint = p.Ckpt.Path(ckptSeqTab)
		return nil
	}, func() error {
		if err := p.Ckpt.LoadJSON(ckptMerged, &merged); err != nil {
			return err
		}
		var lErr error
		matrix, lErr = seqlib.ReadMatrixTSV(p.Ckpt.Path(ckptSeqTab))
		return lErr
	})
	if err != nil {
		return err
	}

	// ============================================== Chimera removal ============================================= //
	err = p.stage(from, StageChimera, func() error {
		var chimStats seqlib.ChimeraStats
		var cErr error
		cleaned, chimStats, cErr = p.Lib.RemoveChimeras(matrix, seqlib.ChimeraMethod(p.Cfg.ChimeraMethod), p.Cfg.Threads)
		if cErr != nil {
			return cErr
		}
		fmt.Printf("Chimera removal dropped %d variants (%.2f%% of abundance)\n\n", chimStats.VariantsRemoved, chimStats.AbundancePctGone)
		if err := seqlib.WriteMatrixTSV(cleaned, p.Ckpt.Path(ckptSeqTabClean)); err != nil {
			return err
		}
		p.lastCheckpoint = p.Ckpt.Path(ckptSeqTabClean)
		return p.save(ckptChimStats, chimStats)
	}, func() error {
		var lErr error
		cleaned, lErr = seqlib.ReadMatrixTSV(p.Ckpt.Path(ckptSeqTabClean))
		return lErr
	})
	if err != nil {
		return err
	}

	// ============================================== Read tracking =============================================== //
	err = p.stage(from, StageTrack, func() error {
		df, tErr := BuildReadTracking(TrackInput{
			Stats:     stats,
			DenoisedF: denoisedF,
			DenoisedR: denoisedR,
			Merged:    merged,
			Cleaned:   cleaned,
		})
		if tErr != nil {
			return tErr
		}
		if err := WriteReadTracking(df, p.Ckpt.Path(ckptTrack)); err != nil {
			return err
		}
		p.lastCheckpoint = p.Ckpt.Path(ckptTrack)
		fmt.Printf("Read tracking report:\n%v\n", df)
		return nil
	}, func() error {
		return nil
	})
	if err != nil {
		return err
	}

	// ================================================= Taxonomy ================================================= //
	err = p.stage(from, StageTaxonomy, func() error {
		table, tErr := p.Lib.AssignTaxonomy(cleaned.Sequences, seqlib.TaxonomyConfig{
			ReferenceDB: p.Cfg.ReferenceDB,
			MaxRank:     p.Cfg.MaxRank,
			MinBoot:     p.Cfg.MinBoot,
			Threads:     p.Cfg.Threads,
		})
		if tErr != nil {
			return tErr
		}
		if err := WriteTaxonomyTSV(table, p.Ckpt.Path(ckptTaxonomy)); err != nil {
			return err
		}
		p.lastCheckpoint = p.Ckpt.Path(ckptTaxonomy)
		return nil
	}, func() error {
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Pipeline complete. Results in %s\n", p.Ckpt.Dir)
	return nil
}

// stage runs one stage: resume-loaded when before the resume point or
// already COMPLETED in the run log, computed and checkpointed otherwise.
func (p *Pipeline) stage(from, s Stage, compute func() error, load func() error) error {
	if from > s || p.completedOnDisk(s) {
		fmt.Printf("Stage %s already done, loading checkpoint ...\n\n", s)
		if err := load(); err != nil {
			return &StageError{Stage: s, LastCheckpoint: p.lastCheckpoint, Err: err}
		}
		p.markCheckpoint(s)
		return nil
	}

	start := time.Now()
	fmt.Printf("=============================== %s ===============================\n\n", s)
	p.logger.Info("PIPELINE", "STAGE", s.String(), "STATUS", "STARTED")

	if err := compute(); err != nil {
		p.logger.Error("PIPELINE", "STAGE", s.String(), "STATUS", "FAILED", "CHECKPOINT", p.lastCheckpoint, "error", err)
		return &StageError{Stage: s, LastCheckpoint: p.lastCheckpoint, Err: err}
	}

	p.markCheckpoint(s)
	p.logger.Info("PIPELINE", "STAGE", s.String(), "STATUS", "COMPLETED", "CHECKPOINT", p.lastCheckpoint)
	fmt.Printf("Stage %s took %s\n\n", s, time.Since(start))
	return nil
}

// completedOnDisk reports whether the run log has a COMPLETED record for
// the stage and its checkpoint files are all still present.
func (p *Pipeline) completedOnDisk(s Stage) bool {
	if _, ok := p.completed[s.String()]; !ok {
		return false
	}
	for _, name := range stageCheckpoints[s] {
		if _, err := os.Stat(p.Ckpt.Path(name)); err != nil {
			return false
		}
	}
	return true
}

func (p *Pipeline) markCheckpoint(s Stage) {
	files := stageCheckpoints[s]
	if len(files) > 0 {
		p.lastCheckpoint = p.Ckpt.Path(files[len(files)-1])
	}
}

func (p *Pipeline) save(name string, v any) error {
	if err := p.Ckpt.SaveJSON(name, v); err != nil {
		return err
	}
	p.lastCheckpoint = p.Ckpt.Path(name)
	return nil
}
