// Package dada2 implements the seqlib.SequenceAnalysis contract on top of
// the DADA2 R package. Read filtering is done natively; the statistical
// steps (error learning, denoising, merging, chimera removal, taxonomy)
// shell out to Rscript and exchange results through TSV tables in the
// work directory.
package dada2

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
	"github.com/gmaffy/amplicon-whisperer/utils"
)

type Library struct {
	// WorkDir holds the R-side artifacts (RDS models, dada objects) and
	// the TSV tables exchanged with Rscript.
	WorkDir string
}

func NewLibrary(workDir string) (*Library, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, err
	}
	return &Library{WorkDir: workDir}, nil
}

// LearnErrorModel fits the per-direction error model over all filtered
// files of that direction. Non-convergence is fatal for the run.
func (L *Library) LearnErrorModel(files []string, dir seqlib.Direction, threads int) (seqlib.ErrorModel, error) {
	artifact := filepath.Join(L.WorkDir, fmt.Sprintf("err_%s.rds", dir))
	infoTSV := filepath.Join(L.WorkDir, fmt.Sprintf("err_%s.info.tsv", dir))

	rCmd := fmt.Sprintf(`suppressMessages(library(dada2));`+
		`filts <- %s;`+
		`err <- learnErrors(filts, multithread=%d);`+
		`saveRDS(err, "%s");`+
		`info <- data.frame(converged=dada2:::checkConvergence(err), rounds=length(attr(err, "trans_iter")));`+
		`write.table(info, "%s", sep="\t", quote=FALSE, row.names=FALSE)`,
		rVector(files), threads, artifact, infoTSV)

	fmt.Printf("Learning %s error model from %d files ...\n", dir, len(files))
	if err := utils.RunBashCmdVerbose(fmt.Sprintf(`Rscript -e '%s'`, rCmd)); err != nil {
		return seqlib.ErrorModel{}, fmt.Errorf("learnErrors (%s): %w", dir, err)
	}

	model := seqlib.ErrorModel{Direction: dir, Artifact: artifact}
	rows, err := readTSV(infoTSV)
	if err != nil {
		return model, fmt.Errorf("reading error-model info: %w", err)
	}
	for _, row := range rows {
		model.Converged = strings.EqualFold(row["converged"], "TRUE")
		model.Rounds, _ = strconv.Atoi(row["rounds"])
	}
	if !model.Converged {
		return model, fmt.Errorf("error model (%s) did not converge after %d rounds", dir, model.Rounds)
	}
	return model, nil
}

// Denoise infers sequence variants per sample from the filtered files of
// one direction. Sample IDs are taken from the file names.
func (L *Library) Denoise(files []string, model seqlib.ErrorModel, mode seqlib.PoolMode, threads int) (map[string]seqlib.DenoisedSample, error) {
	var pool string
	switch mode {
	case seqlib.PoolIndependent:
		pool = "FALSE"
	case seqlib.PoolPooled:
		pool = "TRUE"
	case seqlib.PoolPseudo:
		pool = `"pseudo"`
	default:
		return nil, fmt.Errorf("unknown pool mode %q", mode)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no filtered files to denoise (%s)", model.Direction)
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = sampleIDFromFiltered(f)
	}

	artifact := L.dadaArtifact(model.Direction)
	outTSV := filepath.Join(L.WorkDir, fmt.Sprintf("denoised_%s.tsv", model.Direction))

	rCmd := fmt.Sprintf(`suppressMessages(library(dada2));`+
		`filts <- %s; names(filts) <- %s;`+
		`err <- readRDS("%s");`+
		`dd <- dada(filts, err=err, pool=%s, multithread=%d);`+
		`saveRDS(dd, "%s");`+
		`if (is(dd, "dada")) dd <- list(`+"`"+`%s`+"`"+`=dd);`+
		`long <- do.call(rbind, lapply(names(dd), function(s) { u <- getUniques(dd[[s]]); data.frame(sample=s, sequence=names(u), abundance=as.integer(u)) }));`+
		`write.table(long, "%s", sep="\t", quote=FALSE, row.names=FALSE)`,
		rVector(files), rVector(ids), model.Artifact, pool, threads, artifact, ids[0], outTSV)

	fmt.Printf("Denoising %d samples (%s, pool=%s) ...\n", len(files), model.Direction, mode)
	if err := utils.RunBashCmdVerbose(fmt.Sprintf(`Rscript -e '%s'`, rCmd)); err != nil {
		return nil, fmt.Errorf("dada (%s): %w", model.Direction, err)
	}

	rows, err := readTSV(outTSV)
	if err != nil {
		return nil, fmt.Errorf("reading denoised table: %w", err)
	}
	out := make(map[string]seqlib.DenoisedSample)
	for _, row := range rows {
		id := row["sample"]
		if out[id] == nil {
			out[id] = seqlib.DenoisedSample{}
		}
		n, _ := strconv.Atoi(row["abundance"])
		out[id][row["sequence"]] = n
	}
	return out, nil
}

// MergePairs merges each sample's forward and reverse variant calls by
// overlap consensus. The dada objects saved by Denoise are reloaded on
// the R side together with the filtered files.
func (L *Library) MergePairs(fwd, rev map[string]seqlib.DenoisedSample, fwdFiles, revFiles []string, cfg seqlib.MergeConfig) (map[string]seqlib.MergedSample, error) {
	outTSV := filepath.Join(L.WorkDir, "merged.tsv")

	fwdIDs := make([]string, len(fwdFiles))
	for i, f := range fwdFiles {
		fwdIDs[i] = sampleIDFromFiltered(f)
	}

	rCmd := fmt.Sprintf(`suppressMessages(library(dada2));`+
		`filtsF <- %s; names(filtsF) <- %s;`+
		`filtsR <- %s; names(filtsR) <- %s;`+
		`ddF <- readRDS("%s"); ddR <- readRDS("%s");`+
		`mm <- mergePairs(ddF, filtsF, ddR, filtsR, minOverlap=%d, maxMismatch=%d, verbose=TRUE);`+
		`if (is.data.frame(mm)) mm <- setNames(list(mm), names(filtsF)[1]);`+
		`long <- do.call(rbind, lapply(names(mm), function(s) { m <- mm[[s]]; m <- m[m$accept, , drop=FALSE]; data.frame(sample=s, sequence=m$sequence, abundance=m$abundance, overlap=m$nmatch + m$nmismatch, mismatches=m$nmismatch) }));`+
		`write.table(long, "%s", sep="\t", quote=FALSE, row.names=FALSE)`,
		rVector(fwdFiles), rVector(fwdIDs), rVector(revFiles), rVector(fwdIDs),
		L.dadaArtifact(seqlib.Forward), L.dadaArtifact(seqlib.Reverse),
		cfg.MinOverlap, cfg.MaxMismatch, outTSV)

	fmt.Printf("Merging read pairs for %d samples ...\n", len(fwdFiles))
	if err := utils.RunBashCmdVerbose(fmt.Sprintf(`Rscript -e '%s'`, rCmd)); err != nil {
		return nil, fmt.Errorf("mergePairs: %w", err)
	}

	rows, err := readTSV(outTSV)
	if err != nil {
		return nil, fmt.Errorf("reading merged table: %w", err)
	}
	out := make(map[string]seqlib.MergedSample)
	for _, row := range rows {
		n, _ := strconv.Atoi(row["abundance"])
		ov, _ := strconv.Atoi(row["overlap"])
		mis, _ := strconv.Atoi(row["mismatches"])
		out[row["sample"]] = append(out[row["sample"]], seqlib.MergedRead{
			Sequence:   row["sequence"],
			Abundance:  n,
			Overlap:    ov,
			Mismatches: mis,
		})
	}
	return out, nil
}

// RemoveChimeras drops composite artifact columns from the matrix.
func (L *Library) RemoveChimeras(m *seqlib.AbundanceMatrix, method seqlib.ChimeraMethod, threads int) (*seqlib.AbundanceMatrix, seqlib.ChimeraStats, error) {
	var rMethod string
	switch method {
	case seqlib.ChimeraConsensus:
		rMethod = "consensus"
	case seqlib.ChimeraPooled:
		rMethod = "pooled"
	case seqlib.ChimeraPerSample:
		rMethod = "per-sample"
	default:
		return nil, seqlib.ChimeraStats{}, fmt.Errorf("unknown chimera method %q", method)
	}

	inTSV := filepath.Join(L.WorkDir, "seqtab_chim_in.tsv")
	outTSV := filepath.Join(L.WorkDir, "seqtab_chim_out.tsv")
	if err := seqlib.WriteMatrixTSV(m, inTSV); err != nil {
		return nil, seqlib.ChimeraStats{}, err
	}

	rCmd := fmt.Sprintf(`suppressMessages(library(dada2));`+
		`st <- as.matrix(read.table("%s", header=TRUE, row.names=1, sep="\t", check.names=FALSE));`+
		`st2 <- removeBimeraDenovo(st, method="%s", multithread=%d, verbose=TRUE);`+
		`write.table(st2, "%s", sep="\t", quote=FALSE, col.names=NA)`,
		inTSV, rMethod, threads, outTSV)

	fmt.Printf("Removing chimeras (method=%s) ...\n", rMethod)
	if err := utils.RunBashCmdVerbose(fmt.Sprintf(`Rscript -e '%s'`, rCmd)); err != nil {
		return nil, seqlib.ChimeraStats{}, fmt.Errorf("removeBimeraDenovo: %w", err)
	}

	cleaned, err := seqlib.ReadMatrixTSV(outTSV)
	if err != nil {
		return nil, seqlib.ChimeraStats{}, fmt.Errorf("reading chimera-free table: %w", err)
	}
	return cleaned, chimeraStats(m, cleaned), nil
}

// AssignTaxonomy classifies each variant against the reference training
// set down to cfg.MaxRank. Ranks below the bootstrap threshold come back
// as NA from the classifier and are left unresolved here.
func (L *Library) AssignTaxonomy(sequences []string, cfg seqlib.TaxonomyConfig) (*seqlib.TaxonomyTable, error) {
	ranks := seqlib.RanksTo(cfg.MaxRank)
	if len(ranks) == 0 {
		return nil, fmt.Errorf("unknown taxonomic rank %q", cfg.MaxRank)
	}

	seqFile := filepath.Join(L.WorkDir, "asv_sequences.txt")
	if err := os.WriteFile(seqFile, []byte(strings.Join(sequences, "\n")+"\n"), 0644); err != nil {
		return nil, err
	}
	outTSV := filepath.Join(L.WorkDir, "taxonomy.raw.tsv")

	rCmd := fmt.Sprintf(`suppressMessages(library(dada2));`+
		`seqs <- readLines("%s");`+
		`tax <- assignTaxonomy(seqs, "%s", minBoot=%d, multithread=%d);`+
		`out <- data.frame(sequence=seqs, tax[, seq_len(min(ncol(tax), %d)), drop=FALSE]);`+
		`write.table(out, "%s", sep="\t", quote=FALSE, row.names=FALSE, na="")`,
		seqFile, cfg.ReferenceDB, cfg.MinBoot, cfg.Threads, len(ranks), outTSV)

	fmt.Printf("Assigning taxonomy for %d variants (down to %s) ...\n", len(sequences), cfg.MaxRank)
	if err := utils.RunBashCmdVerbose(fmt.Sprintf(`Rscript -e '%s'`, rCmd)); err != nil {
		return nil, fmt.Errorf("assignTaxonomy: %w", err)
	}

	rows, err := readTSV(outTSV)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy table: %w", err)
	}
	byseq := make(map[string][]string, len(rows))
	for _, row := range rows {
		labels := make([]string, len(ranks))
		for i, rank := range ranks {
			labels[i] = row[rank]
		}
		byseq[row["sequence"]] = labels
	}

	table := &seqlib.TaxonomyTable{Ranks: ranks}
	for _, s := range sequences {
		labels, ok := byseq[s]
		if !ok {
			labels = make([]string, len(ranks))
		}
		table.Assignments = append(table.Assignments, seqlib.Assignment{Sequence: s, Labels: labels})
	}
	return table, nil
}

func (L *Library) dadaArtifact(dir seqlib.Direction) string {
	return filepath.Join(L.WorkDir, fmt.Sprintf("dada_%s.rds", dir))
}

func chimeraStats(before, after *seqlib.AbundanceMatrix) seqlib.ChimeraStats {
	stats := seqlib.ChimeraStats{VariantsRemoved: len(before.Sequences) - len(after.Sequences)}
	var totalBefore, totalAfter int
	for i := range before.Samples {
		totalBefore += before.RowSum(i)
	}
	for i := range after.Samples {
		totalAfter += after.RowSum(i)
	}
	if totalBefore > 0 {
		stats.AbundancePctGone = 100 * float64(totalBefore-totalAfter) / float64(totalBefore)
	}
	return stats
}

// sampleIDFromFiltered recovers the SampleID from a filtered file name
// (<id>_F.fastq.gz / <id>_R.fastq.gz).
func sampleIDFromFiltered(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{"_F.fastq.gz", "_R.fastq.gz", "_F.fastq", "_R.fastq"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func rVector(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = `"` + s + `"`
	}
	return "c(" + strings.Join(quoted, ", ") + ")"
}

// readTSV reads a headered tab-separated table into one map per row.
func readTSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	var rows []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
