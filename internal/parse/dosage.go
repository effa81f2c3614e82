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

package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brentp/vcfgo"

	"github.com/zymatik-com/genomerge/internal/ioutil"
	"github.com/zymatik-com/genomerge/internal/model"
)

// DosageOptions configures the dosage (imputed variant-call) parser.
type DosageOptions struct {
	// MinimumR2, if non-nil, discards records whose R² falls below it
	// before they ever surface to the merge engine.
	MinimumR2 *float64
	// MaxRecoverableErrors bounds how many per-record errors (bad
	// dosage, missing DS) are tolerated before the parser aborts.
	MaxRecoverableErrors int
}

// Dosages parses one bgzip'd per-chromosome imputed variant-call file
// (named chr{N}.dose.vcf.gz upstream; the name itself is not inspected
// here, only its content). chromosome is the autosome this file is
// expected to carry, used only to validate the VCF's own chromosome field
// is consistent.
func Dosages(r io.Reader, opts DosageOptions) ([]model.DosageRecord, error) {
	dr, err := ioutil.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("could not decompress dosage file: %w", err)
	}
	defer dr.Close()

	vcfReader, err := vcfgo.NewReader(dr, false)
	if err != nil {
		return nil, fmt.Errorf("could not create vcf reader: %w", err)
	}

	var records []model.DosageRecord
	recoverableErrors := 0

	for {
		variant := vcfReader.Read()
		if variant == nil {
			break
		}

		chromosome, ok := parseAutosome(variant.Chromosome)
		if !ok {
			continue
		}

		alt := ""
		if len(variant.Alt()) > 0 {
			alt = variant.Alt()[0]
		}
		ref := variant.Ref()

		id := variant.Id()
		if id == "" || id == "." {
			id = fmt.Sprintf("chr%d:%d:%s:%s", chromosome, uint64(variant.Pos), ref, alt)
		}

		dosage, err := extractDosage(variant)
		if err != nil {
			recoverableErrors++
			if recoverableErrors > opts.MaxRecoverableErrors {
				return nil, fmt.Errorf("too many recoverable dosage errors (last: %w)", err)
			}
			continue
		}

		if dosage < 0.0 || dosage > 2.0 {
			recoverableErrors++
			if recoverableErrors > opts.MaxRecoverableErrors {
				return nil, fmt.Errorf("too many recoverable dosage errors (dosage %f out of range)", dosage)
			}
			continue
		}

		r2 := extractR2(variant)

		if opts.MinimumR2 != nil {
			if r2 == nil || *r2 < *opts.MinimumR2 {
				continue
			}
		}

		records = append(records, model.DosageRecord{
			Chromosome:        chromosome,
			Position:          uint64(variant.Pos),
			ID:                id,
			Reference:         ref,
			Alternate:         alt,
			Dosage:            dosage,
			ImputationQuality: r2,
		})
	}

	if err := vcfReader.Error(); err != nil {
		return nil, fmt.Errorf("vcf reader error: %w", err)
	}

	return records, nil
}

// extractDosage reads the DS subfield of the final (submitter's) sample
// column.
func extractDosage(variant *vcfgo.Variant) (float64, error) {
	if len(variant.Samples) == 0 {
		return 0, fmt.Errorf("no sample columns present")
	}

	sample := variant.Samples[len(variant.Samples)-1]

	raw, err := variant.GetGenotypeField(sample, "DS", nil)
	if err != nil || raw == nil {
		return 0, fmt.Errorf("missing DS field: %w", err)
	}

	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable DS value %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported DS field type %T", raw)
	}
}

// extractR2 reads the record-level R2 info key, if present.
func extractR2(variant *vcfgo.Variant) *float64 {
	raw, err := variant.Info().Get("R2")
	if err != nil || raw == nil {
		return nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case []float32:
		if len(v) == 0 {
			return nil
		}
		f = float64(v[0])
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	return &f
}
