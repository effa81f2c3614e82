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

// Package parse implements the three input dialects C2 understands: sparse
// consumer-grade genotypes, bgzip'd imputed dosages, and polygenic score
// tables.
package parse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zymatik-com/genomerge/internal/model"
)

// SparseOptions configures the sparse genotype parser.
type SparseOptions struct {
	// AutosomesOnly restricts retained rows to chromosomes "1".."22".
	// Chromosomes X, Y and MT are explicitly out of scope for this
	// pipeline, so this defaults to true for any caller constructing
	// SparseOptions as a zero value is expected to override it.
	AutosomesOnly bool
}

// SparseGenotypes parses a whole consumer-grade genotyping export. The
// output is the full in-memory list of autosomal records; this is bounded
// to roughly 10^6 rows by the nature of consumer genotyping arrays.
func SparseGenotypes(r io.Reader, opts SparseOptions) ([]model.SparseGenotypeRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var records []model.SparseGenotypeRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 tab-delimited fields, got %d", lineNo, len(fields))
		}

		rsid := fields[0]
		chromosomeStr := fields[1]
		positionStr := fields[2]
		genotype := fields[3]

		chromosome, ok := parseAutosome(chromosomeStr)
		if opts.AutosomesOnly && !ok {
			continue
		}
		if !ok {
			// Non-autosomal rows are never retained, even with
			// AutosomesOnly disabled: chr X/Y/MT are out of scope.
			continue
		}

		position, err := strconv.ParseUint(positionStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: unparseable position %q: %w", lineNo, positionStr, err)
		}

		records = append(records, model.SparseGenotypeRecord{
			RSID:       rsid,
			Chromosome: chromosome,
			Position:   position,
			Genotype:   genotype,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read sparse genotype file: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no autosomal records remained after filtering")
	}

	return records, nil
}

// parseAutosome parses a free-form chromosome label ("1".."22", "X", "Y",
// "MT", optionally "chr"-prefixed) and reports whether it names one of the
// 22 autosomes this pipeline cares about.
func parseAutosome(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "chr")

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 22 {
		return 0, false
	}

	return n, true
}
