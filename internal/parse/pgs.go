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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/zymatik-com/genomerge/internal/model"
)

// PGS parses a polygenic-score table, sniffing the header to distinguish
// the wide and long on-disk shapes, and returns both the unscaled and the
// per-trait-label z-scored tables.
func PGS(r io.Reader) (model.PGSTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return model.PGSTable{}, fmt.Errorf("could not read pgs header: %w", err)
	}
	if len(header) == 0 {
		return model.PGSTable{}, fmt.Errorf("empty pgs header")
	}

	first := strings.ToLower(strings.Trim(strings.TrimSpace(header[0]), `"`))

	var unscaled []model.PGSRecord
	if first == "sample" {
		unscaled, err = parseWidePGS(cr, header)
	} else {
		unscaled, err = parseLongPGS(cr)
	}
	if err != nil {
		return model.PGSTable{}, err
	}

	if len(unscaled) == 0 {
		return model.PGSTable{}, fmt.Errorf("no pgs records parsed")
	}

	scaled := zScore(unscaled)

	return model.PGSTable{Unscaled: unscaled, Scaled: scaled}, nil
}

func parseLongPGS(cr *csv.Reader) ([]model.PGSRecord, error) {
	var records []model.PGSRecord

	lineNo := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read pgs row: %w", err)
		}
		lineNo++

		if len(row) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields (ID, PGS_label, score_value), got %d", lineNo, len(row))
		}

		score, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("line %d: non-finite score value %q", lineNo, row[2])
		}

		records = append(records, model.PGSRecord{
			SampleID: strings.TrimSpace(row[0]),
			Label:    strings.TrimSpace(row[1]),
			Score:    score,
		})
	}

	return records, nil
}

func parseWidePGS(cr *csv.Reader, header []string) ([]model.PGSRecord, error) {
	labels := make([]string, len(header)-1)
	for i, h := range header[1:] {
		labels[i] = strings.TrimSpace(h)
	}

	var records []model.PGSRecord

	lineNo := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read pgs row: %w", err)
		}
		lineNo++

		if len(row) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", lineNo, len(header), len(row))
		}

		sampleID := strings.TrimSpace(row[0])
		for i, label := range labels {
			raw := strings.TrimSpace(row[i+1])
			if raw == "" {
				continue
			}

			score, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
				return nil, fmt.Errorf("line %d: non-finite score value %q for label %q", lineNo, raw, label)
			}

			records = append(records, model.PGSRecord{
				SampleID: sampleID,
				Label:    label,
				Score:    score,
			})
		}
	}

	return records, nil
}

// zScore normalizes scores per trait label: z = (x - mean) / stddev. If
// the population standard deviation for a label is zero, every z-value for
// that label is zero.
func zScore(records []model.PGSRecord) []model.PGSRecord {
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, rec := range records {
		sums[rec.Label] += rec.Score
		counts[rec.Label]++
	}

	means := make(map[string]float64, len(sums))
	for label, sum := range sums {
		means[label] = sum / float64(counts[label])
	}

	variances := make(map[string]float64, len(sums))
	for _, rec := range records {
		d := rec.Score - means[rec.Label]
		variances[rec.Label] += d * d
	}
	for label, v := range variances {
		variances[label] = v / float64(counts[label])
	}

	scaled := make([]model.PGSRecord, len(records))
	for i, rec := range records {
		stddev := math.Sqrt(variances[rec.Label])

		z := 0.0
		if stddev > 0 {
			z = (rec.Score - means[rec.Label]) / stddev
		}

		scaled[i] = model.PGSRecord{
			SampleID: rec.SampleID,
			Label:    rec.Label,
			Score:    z,
		}
	}

	return scaled
}
