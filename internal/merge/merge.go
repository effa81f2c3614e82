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

package merge

import (
	"fmt"

	"github.com/zymatik-com/genomerge/internal/model"
)

// lowQualR2 is the R² floor below which an imputed samp51 datum is tagged
// ImputedLowQual rather than Imputed.
const lowQualR2 = 0.3

// placeholderGenotype is emitted for samp51 when neither the sparse
// genotype nor the dosage record has data for a variant (merge step 3(c)).
// This standardizes Open Question Q1: "0|0"/0.0/Imputed, not "./.".
const placeholderGenotype = "0|0"

// Options configures one chromosome's merge.
type Options struct {
	QualityThreshold model.QualityThreshold
	// StrandFlip enables the complement-and-retry fallback when matching
	// a sparse genotype against the reference alleles (Open Question
	// Q2: opt-in, not a global default).
	StrandFlip bool
}

// Chromosome performs the per-chromosome 51-sample join described in
// spec §4.3. referenceVariants must already be filtered and ordered by
// position for this chromosome (C1's contract); sparse and dosage are this
// chromosome's slice of the submitter's parsed records (C2's contract).
func Chromosome(referenceVariants []model.ReferenceVariant, sparse []model.SparseGenotypeRecord, dosage []model.DosageRecord, opts Options) ([]model.MergedVariant, error) {
	sparseIndex := indexSparse(sparse)
	dosageIndex := indexDosage(dosage)

	minR2, filterEnabled := opts.QualityThreshold.Min()

	merged := make([]model.MergedVariant, 0, len(referenceVariants))

	for _, ref := range referenceVariants {
		if filterEnabled && ref.ImputationQuality != nil && *ref.ImputationQuality < minR2 {
			continue // quality filter: absent from output entirely
		}

		samples := make([]model.SampleDatum, 0, model.NumTotalSamples)
		for i := 1; i <= model.NumReferenceSamples; i++ {
			sampleID := fmt.Sprintf("samp%d", i)
			genotype, ok := ref.Genotypes[sampleID]
			if !ok {
				return nil, fmt.Errorf("chr%d:%d: reference row missing %s", ref.Chromosome, ref.Position, sampleID)
			}

			provenance := model.Imputed
			if ref.Typed {
				provenance = model.Genotyped
			}

			samples = append(samples, model.SampleDatum{
				SampleID:          sampleID,
				Genotype:          genotype,
				Dosage:            referenceDosage(genotype),
				Provenance:        provenance,
				ImputationQuality: ref.ImputationQuality,
			})
		}

		samples = append(samples, composeSubmitter(sparseIndex, dosageIndex, ref, opts.StrandFlip))

		merged = append(merged, model.MergedVariant{
			Chromosome:        ref.Chromosome,
			Position:          ref.Position,
			RSID:              ref.RSID,
			Reference:         ref.Reference,
			Alternate:         ref.Alternate,
			AlleleFrequency:   ref.AlleleFrequency,
			MinorAlleleFreq:   ref.MinorAlleleFreq,
			ImputationQuality: ref.ImputationQuality,
			Typed:             ref.Typed,
			Samples:           samples,
		})
	}

	return merged, nil
}

// composeSubmitter implements merge step 3: precedence (a) sparse genotype,
// (b) dosage record, (c) placeholder.
func composeSubmitter(sparseIndex map[uint64]model.SparseGenotypeRecord, dosageIndex map[model.Key]model.DosageRecord, ref model.ReferenceVariant, strandFlip bool) model.SampleDatum {
	dosageKey := model.Key{Position: ref.Position, Ref: ref.Reference, Alt: ref.Alternate}

	if rec, ok := sparseIndex[ref.Position]; ok {
		if dosage, ok := genotypeToDosage(rec.Genotype, ref.Reference, ref.Alternate, strandFlip); ok {
			return model.SampleDatum{
				SampleID:   model.SubmitterSampleID,
				Genotype:   rec.Genotype,
				Dosage:     dosage,
				Provenance: model.Genotyped,
			}
		}
		// Falls through to (b) on an unresolvable genotype.
	}

	if rec, ok := dosageIndex[dosageKey]; ok {
		provenance := model.Imputed
		if rec.ImputationQuality != nil && *rec.ImputationQuality < lowQualR2 {
			provenance = model.ImputedLowQual
		}

		return model.SampleDatum{
			SampleID:          model.SubmitterSampleID,
			Genotype:          dosageToGenotype(rec.Dosage),
			Dosage:            rec.Dosage,
			Provenance:        provenance,
			ImputationQuality: rec.ImputationQuality,
		}
	}

	return model.SampleDatum{
		SampleID:          model.SubmitterSampleID,
		Genotype:          placeholderGenotype,
		Dosage:            0.0,
		Provenance:        model.Imputed,
		ImputationQuality: ref.ImputationQuality,
	}
}

// indexSparse indexes by position alone: a sparse genotype's own two
// characters don't carry a determined (ref, alt) assignment (the array
// reports two observed bases, not which one is ancestral), so the actual
// (position, ref, alt) match against the reference panel's alleles is
// resolved per-variant by genotypeToDosage's order-independent character
// matching. If a submitter's file carries more than one row at the same
// position (multi-allelic splits are not expected from a consumer array),
// the first row wins.
func indexSparse(records []model.SparseGenotypeRecord) map[uint64]model.SparseGenotypeRecord {
	index := make(map[uint64]model.SparseGenotypeRecord, len(records))
	for _, rec := range records {
		if _, exists := index[rec.Position]; exists {
			continue
		}
		index[rec.Position] = rec
	}
	return index
}

func indexDosage(records []model.DosageRecord) map[model.Key]model.DosageRecord {
	index := make(map[model.Key]model.DosageRecord, len(records))
	for _, rec := range records {
		index[model.Key{Position: rec.Position, Ref: rec.Reference, Alt: rec.Alternate}] = rec
	}
	return index
}
