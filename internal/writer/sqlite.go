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

package writer

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zymatik-com/genomerge/internal/model"
)

// sqliteWriter is the single embedded relational database backend (C4
// "Relational format").
type sqliteWriter struct {
	path string
	db   *sql.DB
}

func newSQLiteWriter(outputDir string) (*sqliteWriter, error) {
	if err := ensureDir(outputDir); err != nil {
		return nil, err
	}

	path := filepath.Join(outputDir, "genomerge.sqlite")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}

	// Aggressive, durability-sacrificing tuning: this file is rebuilt
	// from scratch and re-enables safe settings before finalize.
	pragmas := []string{
		"PRAGMA page_size = 32768",
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = -2097152", // 2GiB, negative = KiB
		"PRAGMA locking_mode = EXCLUSIVE",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not apply %q: %w", p, err)
		}
	}

	schema := []string{
		`CREATE TABLE variants (
			rsid TEXT,
			chromosome INTEGER,
			position INTEGER,
			ref_allele TEXT,
			alt_allele TEXT,
			allele_freq REAL,
			minor_allele_freq REAL,
			is_typed INTEGER,
			sample_id TEXT,
			genotype TEXT,
			dosage REAL,
			source TEXT,
			imputation_quality REAL
		)`,
		`CREATE TABLE pgs_unscaled (
			sample_id TEXT,
			trait_label TEXT,
			value REAL,
			PRIMARY KEY (sample_id, trait_label)
		)`,
		`CREATE TABLE pgs_scaled (
			sample_id TEXT,
			trait_label TEXT,
			value REAL,
			PRIMARY KEY (sample_id, trait_label)
		)`,
		`CREATE TABLE metadata (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create schema: %w", err)
		}
	}

	return &sqliteWriter{path: path, db: db}, nil
}

const insertVariantSQL = `INSERT INTO variants (
	rsid, chromosome, position, ref_allele, alt_allele, allele_freq,
	minor_allele_freq, is_typed, sample_id, genotype, dosage, source,
	imputation_quality
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *sqliteWriter) append(chromosome int, variants []model.MergedVariant) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertVariantSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("could not prepare insert: %w", err)
	}

	for _, v := range variants {
		for _, samp := range v.Samples {
			_, err := stmt.Exec(
				nullString(v.RSID), v.Chromosome, v.Position, v.Reference, v.Alternate,
				nullFloat(v.AlleleFrequency), nullFloat(v.MinorAlleleFreq), boolToUint64(v.Typed),
				samp.SampleID, samp.Genotype, samp.Dosage, string(samp.Provenance),
				nullFloat(samp.ImputationQuality),
			)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("could not insert variant row: %w", err)
			}
		}
	}

	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("could not close prepared insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit chromosome %d: %w", chromosome, err)
	}

	return nil
}

// writePGS populates pgs_unscaled and pgs_scaled. Only the relational
// backend carries polygenic score tables.
func (s *sqliteWriter) writePGS(table model.PGSTable) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin pgs transaction: %w", err)
	}

	if err := insertPGSRows(tx, "pgs_unscaled", table.Unscaled); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertPGSRows(tx, "pgs_scaled", table.Scaled); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit pgs tables: %w", err)
	}

	return nil
}

func insertPGSRows(tx *sql.Tx, table string, records []model.PGSRecord) error {
	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (sample_id, trait_label, value) VALUES (?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("could not prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.SampleID, rec.Label, rec.Score); err != nil {
			return fmt.Errorf("could not insert into %s: %w", table, err)
		}
	}

	return nil
}

func (s *sqliteWriter) finalize(meta Metadata) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin metadata transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO metadata (key, value) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("could not prepare metadata insert: %w", err)
	}

	rows := [][2]string{
		{"job_id", meta.JobID},
		{"submitter_id", meta.SubmitterID},
		{"started_at", meta.StartedAt.Format(timeLayout)},
		{"completed_at", meta.CompletedAt.Format(timeLayout)},
		{"total_variants", fmt.Sprintf("%d", meta.TotalVariants)},
		{"genotyped_count", fmt.Sprintf("%d", meta.GenotypedCount)},
		{"low_quality_count", fmt.Sprintf("%d", meta.LowQualityCount)},
	}
	for _, kv := range rows {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("could not insert metadata %s: %w", kv[0], err)
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("could not close metadata insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit metadata: %w", err)
	}

	// Indexes: (chromosome, position) and (sample_id). Deliberately no
	// index on rsid (Open Question Q5): high-cardinality text, prohibitive
	// index size relative to the lookups it would serve.
	indexes := []string{
		`CREATE INDEX idx_variants_chromosome_position ON variants (chromosome, position)`,
		`CREATE INDEX idx_variants_sample_id ON variants (sample_id)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("could not create index: %w", err)
		}
	}

	reenable := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range reenable {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("could not apply %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("could not vacuum: %w", err)
	}

	return s.db.Close()
}

func (s *sqliteWriter) paths() []string {
	return []string{s.path}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
