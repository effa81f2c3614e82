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

// Package writer implements the streaming output writer (C4): a
// format-parallel incremental serializer holding at most one chromosome's
// merged variants resident at a time, regardless of total input size.
package writer

import (
	"fmt"
	"time"

	"github.com/zymatik-com/genomerge/internal/model"
)

// formatWriter is the closed-world interface every output backend
// implements. The format set is fixed (spec §9 "dynamic dispatch"); there
// is no plugin registration.
type formatWriter interface {
	// append is called exactly once per chromosome, in order 1..22.
	append(chromosome int, variants []model.MergedVariant) error
	// finalize closes the backend and returns its output path(s). It is
	// only called after every chromosome has been appended.
	finalize(meta Metadata) error
	// path returns the finalized backend's on-disk path(s), format-specific.
	paths() []string
}

// Metadata is accumulated across every Append call and written into the
// relational backend's metadata table (and is otherwise informational).
type Metadata struct {
	JobID           string
	SubmitterID     string
	StartedAt       time.Time
	CompletedAt     time.Time
	TotalVariants   int
	GenotypedCount  int
	LowQualityCount int
}

// state is the per-format substate machine described in spec §9: each
// active format carries {open, rows, finalized}.
type state int

const (
	stateOpen state = iota
	stateFinalized
)

// Writer fans append(chromosome, variants) out over every requested
// output format. A failure in any backend is fatal to the whole writer
// (and therefore to the job): partial output is never surfaced as
// completed.
type Writer struct {
	outputDir string
	backends  map[model.OutputFormat]formatWriter
	states    map[model.OutputFormat]state
	meta      Metadata
}

// New initializes one backend per requested format. vcfLayout only
// affects the "vcf" backend.
func New(outputDir string, formats []model.OutputFormat, vcfLayout model.VCFLayout) (*Writer, error) {
	w := &Writer{
		outputDir: outputDir,
		backends:  make(map[model.OutputFormat]formatWriter, len(formats)),
		states:    make(map[model.OutputFormat]state, len(formats)),
	}

	for _, format := range formats {
		var (
			fw  formatWriter
			err error
		)

		switch format {
		case model.FormatParquet:
			fw, err = newParquetWriter(outputDir)
		case model.FormatSQLite:
			fw, err = newSQLiteWriter(outputDir)
		case model.FormatVCF:
			fw, err = newVCFWriter(outputDir, vcfLayout)
		default:
			return nil, fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return nil, fmt.Errorf("could not initialize %s writer: %w", format, err)
		}

		w.backends[format] = fw
		w.states[format] = stateOpen
	}

	return w, nil
}

// Append writes one chromosome's merged variants to every active backend,
// then the caller is free to drop the batch: the writer itself never
// retains more than the backend-specific buffering needed to flush a row
// group/transaction.
func (w *Writer) Append(chromosome int, variants []model.MergedVariant) error {
	w.accumulate(variants)

	for format, fw := range w.backends {
		if w.states[format] != stateOpen {
			return fmt.Errorf("writer %s: append called after finalize", format)
		}
		if err := fw.append(chromosome, variants); err != nil {
			return fmt.Errorf("writer %s: append chromosome %d: %w", format, chromosome, err)
		}
	}

	return nil
}

func (w *Writer) accumulate(variants []model.MergedVariant) {
	for _, v := range variants {
		w.meta.TotalVariants++
		if v.Typed {
			w.meta.GenotypedCount++
		}
		samp51 := v.Samples[len(v.Samples)-1]
		if samp51.Provenance == model.ImputedLowQual {
			w.meta.LowQualityCount++
		}
	}
}

// Finalize closes every backend and returns each format's output path.
// If any backend fails to finalize cleanly, the job must not be marked
// completed (spec §4.4 "Failure semantics").
func (w *Writer) Finalize(jobID, submitterID string, startedAt time.Time) (map[model.OutputFormat]string, error) {
	w.meta.JobID = jobID
	w.meta.SubmitterID = submitterID
	w.meta.StartedAt = startedAt
	w.meta.CompletedAt = time.Now()

	paths := make(map[model.OutputFormat]string, len(w.backends))

	for format, fw := range w.backends {
		if w.states[format] != stateOpen {
			return nil, fmt.Errorf("writer %s: finalize called more than once", format)
		}

		if err := fw.finalize(w.meta); err != nil {
			return nil, fmt.Errorf("writer %s: finalize: %w", format, err)
		}
		w.states[format] = stateFinalized

		for i, p := range fw.paths() {
			if i == 0 {
				paths[format] = p
			}
		}
	}

	return paths, nil
}

// Metadata returns the metadata accumulated so far (for progress
// reporting before Finalize has run).
func (w *Writer) Metadata() Metadata {
	return w.meta
}

// pgsWriter is implemented only by backends that carry polygenic score
// tables (today, only the relational backend).
type pgsWriter interface {
	writePGS(table model.PGSTable) error
}

// WritePGS populates the PGS tables in any backend that supports them. It
// is a no-op when no such backend is active, and must be called after the
// per-chromosome loop but before Finalize.
func (w *Writer) WritePGS(table model.PGSTable) error {
	for format, fw := range w.backends {
		pw, ok := fw.(pgsWriter)
		if !ok {
			continue
		}
		if err := pw.writePGS(table); err != nil {
			return fmt.Errorf("writer %s: write pgs: %w", format, err)
		}
	}
	return nil
}
