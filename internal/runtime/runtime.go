/* SPDX-License-Identifier: AGPL-3.0-or-later
 *
 * Zymatik Genomerge - Merge submitter genomic data against a reference panel.
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package runtime is the job lifecycle orchestrator (C5 glue): dequeue,
// optional chunk reassembly, the per-chromosome merge/write loop,
// archive, credentials, notification. Chromosomes are merged
// sequentially — a deliberate memory bound (spec §5), not a performance
// limit.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zymatik-com/genomerge/internal/archive"
	"github.com/zymatik-com/genomerge/internal/credential"
	"github.com/zymatik-com/genomerge/internal/jobstore"
	"github.com/zymatik-com/genomerge/internal/merge"
	"github.com/zymatik-com/genomerge/internal/model"
	"github.com/zymatik-com/genomerge/internal/notify"
	"github.com/zymatik-com/genomerge/internal/parse"
	"github.com/zymatik-com/genomerge/internal/progress"
	"github.com/zymatik-com/genomerge/internal/queue"
	"github.com/zymatik-com/genomerge/internal/refpanel"
	"github.com/zymatik-com/genomerge/internal/upload"
	"github.com/zymatik-com/genomerge/internal/writer"
)

// numChromosomes is the count of autosomes the pipeline processes
// (spec §1 Non-goals excludes X, Y, MT).
const numChromosomes = 22

// credentialExpiry is how long a completed job's download credentials
// remain valid.
const credentialExpiry = 7 * 24 * time.Hour

// Runtime holds every long-lived, process-scoped dependency the worker
// loop needs (spec §9 "Global state": passed explicitly, not as
// process-global singletons).
type Runtime struct {
	Logger         *slog.Logger
	Queue          *queue.Queue
	Store          *jobstore.Store
	Redis          *redis.Client
	ReferencePanel string
	SMTP           notify.Config
}

// Run is the worker's main loop: blocking-pop a job, process it to
// completion or failure, repeat until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	if _, err := rt.Store.RecoverStuckJobs(ctx); err != nil {
		rt.Logger.Error("could not run stuck-job recovery", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		payload, err := rt.Queue.Pop(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			rt.Logger.Error("could not pop job from queue", "error", err)
			continue
		}

		rt.processJob(ctx, payload)
	}
}

// processJob runs one job end to end. Any error transitions the job to
// failed and is logged; it never propagates out and kills the worker
// loop (spec §7 "Internal" error class).
func (rt *Runtime) processJob(ctx context.Context, payload model.JobPayload) {
	logger := rt.Logger.With("job_id", payload.JobID)
	pub := progress.NewPublisher(rt.Redis, payload.JobID)

	tenantID := payload.UserEmail
	if tenantID == "" {
		tenantID = payload.UserID
	}

	fail := func(stage string, err error) {
		logger.Error("job failed", "stage", stage, "error", err)
		if merr := rt.Store.MarkFailed(ctx, tenantID, payload.JobID, err.Error()); merr != nil {
			logger.Error("could not mark job failed", "error", merr)
		}
		_ = pub.Publish(ctx, 100, fmt.Sprintf("failed: %s", err))
	}

	if err := rt.Store.MarkProcessing(ctx, tenantID, payload.JobID); err != nil {
		fail("mark-processing", err)
		return
	}
	_ = pub.Publish(ctx, 0, "started")

	uploadDir := payload.UploadDir
	if payload.ChunkedUpload {
		chunksDir := filepath.Join(uploadDir, "chunks")
		if err := upload.Reassemble(chunksDir, uploadDir); err != nil {
			fail("reassemble", err)
			return
		}
	}
	_ = pub.Publish(ctx, 8, "discovery")

	inputs, err := discover(uploadDir)
	if err != nil {
		fail("discovery", err)
		return
	}

	if err := validateInputs(logger, inputs); err != nil {
		fail("validate", err)
		return
	}
	_ = pub.Publish(ctx, 15, "validated")

	sparseRecords, err := parseSparse(inputs.genomeFile)
	if err != nil {
		fail("sparse-parse", err)
		return
	}
	_ = pub.Publish(ctx, 22, "sparse parse complete")

	dosageByChromosome, err := parseDosages(inputs.dosageFiles)
	if err != nil {
		fail("dosage-parse", err)
		return
	}
	_ = pub.Publish(ctx, 35, "dosage parse complete")

	var pgsTable model.PGSTable
	if inputs.pgsFile != "" {
		pgsTable, err = parsePGS(inputs.pgsFile)
		if err != nil {
			fail("pgs-parse", err)
			return
		}
	}
	_ = pub.Publish(ctx, 48, "pgs parse complete")

	panel, err := refpanel.Open(rt.ReferencePanel)
	if err != nil {
		fail("refpanel-open", err)
		return
	}

	w, err := writer.New(payload.OutputDir, payload.OutputFormats, payload.VCFLayout)
	if err != nil {
		fail("writer-init", err)
		return
	}

	sparseByChromosome := indexSparseByChromosome(sparseRecords)

	mergeOpts := merge.Options{QualityThreshold: payload.QualityThreshold}

	startedAt := time.Now()
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		referenceVariants, err := panel.Load(chrom)
		if err != nil {
			fail("refpanel-load", err)
			return
		}

		mergedVariants, err := merge.Chromosome(referenceVariants, sparseByChromosome[chrom], dosageByChromosome[chrom], mergeOpts)
		if err != nil {
			fail("merge", err)
			return
		}

		if err := w.Append(chrom, mergedVariants); err != nil {
			fail("write", err)
			return
		}

		pct := 55 + (chrom*30)/numChromosomes
		_ = pub.Publish(ctx, pct, fmt.Sprintf("chromosome %d merged", chrom))
	}

	if err := w.WritePGS(pgsTable); err != nil {
		fail("write-pgs", err)
		return
	}

	if _, err := w.Finalize(payload.JobID, payload.UserEmail, startedAt); err != nil {
		fail("finalize", err)
		return
	}
	_ = pub.Publish(ctx, 90, "finalize complete")

	archivePath, err := archive.Build(payload.OutputDir, payload.JobID)
	if err != nil {
		fail("archive", err)
		return
	}
	_ = pub.Publish(ctx, 95, "archive built")

	if err := rt.credentialAndNotify(ctx, tenantID, payload, archivePath); err != nil {
		fail("credential", err)
		return
	}

	_ = pub.Publish(ctx, 100, "done")
}

// credentialAndNotify mints download credentials (if an email was
// supplied), stores them, and triggers the completion notification.
func (rt *Runtime) credentialAndNotify(ctx context.Context, tenantID string, payload model.JobPayload, archivePath string) error {
	if payload.UserEmail == "" {
		return rt.Store.MarkCompleted(ctx, tenantID, payload.JobID, archivePath, "", "", time.Time{})
	}

	token, err := credential.Token()
	if err != nil {
		return err
	}
	password, err := credential.Password()
	if err != nil {
		return err
	}
	hash, err := credential.Hash(password)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(credentialExpiry)

	if err := rt.Store.MarkCompleted(ctx, tenantID, payload.JobID, archivePath, token, hash, expiresAt); err != nil {
		return err
	}

	if err := notify.SendDownloadReady(rt.SMTP, payload.UserEmail, payload.JobID, token, password); err != nil {
		rt.Logger.Error("could not send notification", "job_id", payload.JobID, "error", err)
		return nil // notification failure does not fail an already-completed job
	}

	return rt.Store.MarkEmailed(ctx, tenantID, payload.JobID)
}

func parseSparse(path string) ([]model.SparseGenotypeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	return parse.SparseGenotypes(f, parse.SparseOptions{AutosomesOnly: true})
}

func parseDosages(paths map[int]string) (map[int][]model.DosageRecord, error) {
	out := make(map[int][]model.DosageRecord, len(paths))

	for chrom, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", path, err)
		}

		records, err := parse.Dosages(f, parse.DosageOptions{MaxRecoverableErrors: 100})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", path, err)
		}

		out[chrom] = records
	}

	return out, nil
}

func parsePGS(path string) (model.PGSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.PGSTable{}, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	return parse.PGS(f)
}

func indexSparseByChromosome(records []model.SparseGenotypeRecord) map[int][]model.SparseGenotypeRecord {
	out := make(map[int][]model.SparseGenotypeRecord)
	for _, rec := range records {
		out[rec.Chromosome] = append(out[rec.Chromosome], rec)
	}
	return out
}
