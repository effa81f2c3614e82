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

// Package refpanel provides random-access retrieval of one autosome's
// variants from the curated 50-sample reference panel (C1).
package refpanel

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zymatik-com/genomerge/internal/model"
)

// sampleIDs is the canonical samp1..samp50 ordering.
var sampleIDs = func() [model.NumReferenceSamples]string {
	var ids [model.NumReferenceSamples]string
	for i := range ids {
		ids[i] = fmt.Sprintf("samp%d", i+1)
	}
	return ids
}()

// Reader is a stateless handle onto the reference panel's embedded
// relational store. It is safe, and intended, to re-open per chromosome so
// that resident memory is bounded to one chromosome at a time.
type Reader struct {
	path string
}

// Open validates that the reference panel file can be opened and returns a
// Reader over it. It does not keep a database handle open between calls to
// Load; each Load call opens its own connection.
func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("could not open reference panel: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("reference panel not openable: %w", err)
	}

	return &Reader{path: path}, nil
}

// Load returns all reference variants for chromosome (1..22) ordered by
// position, fully decoded. Any error is fatal: the reference panel is
// assumed internally consistent, and corruption is not recoverable.
func (r *Reader) Load(chromosome int) ([]model.ReferenceVariant, error) {
	db, err := sql.Open("sqlite3", "file:"+r.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("could not open reference panel: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT chromosome, position, rsid, ref_allele, alt_allele, phased,
		       allele_freq, minor_allele_freq, imputation_quality, is_typed,
		       sample_genotypes
		FROM reference_variants
		WHERE chromosome = ?
		ORDER BY position ASC
	`, chromosome)
	if err != nil {
		return nil, fmt.Errorf("could not query reference variants: %w", err)
	}
	defer rows.Close()

	var variants []model.ReferenceVariant
	for rows.Next() {
		var (
			v           model.ReferenceVariant
			rsid        sql.NullString
			alleleFreq  sql.NullFloat64
			maf         sql.NullFloat64
			iq          sql.NullFloat64
			isTyped     int64
			genotypeRaw []byte
		)

		if err := rows.Scan(&v.Chromosome, &v.Position, &rsid, &v.Reference, &v.Alternate,
			&v.Phased, &alleleFreq, &maf, &iq, &isTyped, &genotypeRaw); err != nil {
			return nil, fmt.Errorf("could not decode reference variant row: %w", err)
		}

		if rsid.Valid {
			v.RSID = rsid.String
		}
		if alleleFreq.Valid {
			v.AlleleFrequency = &alleleFreq.Float64
		}
		if maf.Valid {
			v.MinorAlleleFreq = &maf.Float64
		}
		if iq.Valid {
			v.ImputationQuality = &iq.Float64
		}
		v.Typed = isTyped != 0

		genotypes, err := decodeGenotypes(genotypeRaw)
		if err != nil {
			return nil, fmt.Errorf("chr%d:%d: %w", v.Chromosome, v.Position, err)
		}
		v.Genotypes = genotypes

		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read reference variants: %w", err)
	}

	return variants, nil
}

// decodeGenotypes unmarshals the sample_genotypes JSON blob and extracts
// exactly the 50 canonical sample ids. A missing sample id is a fatal
// decoding error, per the C1 contract.
func decodeGenotypes(raw []byte) (map[string]string, error) {
	var all map[string]string
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("could not decode sample genotypes: %w", err)
	}

	genotypes := make(map[string]string, model.NumReferenceSamples)
	for _, id := range sampleIDs {
		genotype, ok := all[id]
		if !ok {
			return nil, fmt.Errorf("missing expected sample %q", id)
		}
		genotypes[id] = genotype
	}

	return genotypes, nil
}
