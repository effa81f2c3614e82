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

// Package model defines the data types shared across the reference panel
// reader, the input parsers, the merge engine and the output writer.
package model

// NumReferenceSamples is the number of phased samples carried by the
// reference panel (samp1..samp50). The submitter occupies slot 51.
const NumReferenceSamples = 50

// NumTotalSamples is NumReferenceSamples plus the submitter.
const NumTotalSamples = NumReferenceSamples + 1

// SubmitterSampleID is the sample identifier used for the submitter's own
// data within a MergedVariant.
const SubmitterSampleID = "samp51"

// Provenance tags the origin of a SampleDatum.
type Provenance string

const (
	Genotyped      Provenance = "Genotyped"
	Imputed        Provenance = "Imputed"
	ImputedLowQual Provenance = "ImputedLowQual"
)

// QualityThreshold is the imputation-quality floor applied by the merge
// engine's quality filter.
type QualityThreshold string

const (
	QualityNone QualityThreshold = "none"
	Quality080  QualityThreshold = "0.8"
	Quality090  QualityThreshold = "0.9"
)

// Min returns the minimum acceptable R² for this threshold, and whether
// any filtering should be applied at all.
func (q QualityThreshold) Min() (float64, bool) {
	switch q {
	case Quality080:
		return 0.8, true
	case Quality090:
		return 0.9, true
	default:
		return 0, false
	}
}

// ReferenceVariant is a single row of the 50-sample reference panel for one
// chromosome, as produced by the reference panel reader (C1).
type ReferenceVariant struct {
	Chromosome        int
	Position          uint64
	RSID              string // optional, may be empty
	Reference         string
	Alternate         string
	Phased            bool
	AlleleFrequency   *float64
	MinorAlleleFreq   *float64
	ImputationQuality *float64
	Typed             bool
	// Genotypes holds exactly NumReferenceSamples entries, keyed "samp1".."samp50".
	Genotypes map[string]string
}

// SparseGenotypeRecord is one row from the submitter's consumer-grade
// genotyping export (C2).
type SparseGenotypeRecord struct {
	RSID       string
	Chromosome int // 1..22, already filtered to autosomes
	Position   uint64
	Genotype   string // exactly two nucleotide characters, or "--"
}

// DosageRecord is one row from the submitter's imputed variant-call file
// for a single chromosome (C2).
type DosageRecord struct {
	Chromosome        int
	Position          uint64
	ID                string
	Reference         string
	Alternate         string
	Dosage            float64
	ImputationQuality *float64 // optional
}

// Key identifies a DosageRecord/SparseGenotypeRecord by the join key the
// merge engine uses: (position, ref, alt).
type Key struct {
	Position uint64
	Ref      string
	Alt      string
}

// SampleDatum is one sample's contribution to a MergedVariant (C3).
type SampleDatum struct {
	SampleID          string
	Genotype          string
	Dosage            float64
	Provenance        Provenance
	ImputationQuality *float64
}

// MergedVariant is the 51-sample join result the merge engine streams to
// the output writer (C3 -> C4).
type MergedVariant struct {
	Chromosome        int
	Position          uint64
	RSID              string
	Reference         string
	Alternate         string
	AlleleFrequency   *float64
	MinorAlleleFreq   *float64
	ImputationQuality *float64
	Typed             bool
	// Samples is always exactly NumTotalSamples long, ordered
	// samp1..samp50, samp51.
	Samples []SampleDatum
}
