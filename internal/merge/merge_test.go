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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zymatik-com/genomerge/internal/model"
)

func referenceSamples(genotype string) map[string]string {
	genotypes := make(map[string]string, model.NumReferenceSamples)
	for i := 1; i <= model.NumReferenceSamples; i++ {
		genotypes[fmt.Sprintf("samp%d", i)] = genotype
	}
	return genotypes
}

func TestChromosomePassthrough(t *testing.T) {
	refVariants := []model.ReferenceVariant{
		{
			Chromosome: 1,
			Position:   1000,
			Reference:  "A",
			Alternate:  "G",
			Typed:      true,
			Genotypes:  referenceSamples("0|0"),
		},
	}

	merged, err := Chromosome(refVariants, nil, nil, Options{})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	mv := merged[0]
	require.Len(t, mv.Samples, model.NumTotalSamples)
	require.Equal(t, "samp1", mv.Samples[0].SampleID)
	require.Equal(t, "samp51", mv.Samples[model.NumReferenceSamples].SampleID)

	samp51 := mv.Samples[model.NumReferenceSamples]
	require.Equal(t, "0|0", samp51.Genotype)
	require.Equal(t, 0.0, samp51.Dosage)
	require.Equal(t, model.Imputed, samp51.Provenance)
	require.Nil(t, samp51.ImputationQuality)

	samp1 := mv.Samples[0]
	require.Equal(t, model.Genotyped, samp1.Provenance)
	require.Equal(t, 0.0, samp1.Dosage)
}

func TestChromosomeGenotypePrecedence(t *testing.T) {
	r2 := 0.95
	refVariants := []model.ReferenceVariant{
		{
			Chromosome:        1,
			Position:          2000,
			Reference:         "T",
			Alternate:         "C",
			Typed:             false,
			ImputationQuality: &r2,
			Genotypes:         referenceSamples("0|0"),
		},
	}
	sparse := []model.SparseGenotypeRecord{
		{Chromosome: 1, Position: 2000, Genotype: "TC"},
	}
	dosage := []model.DosageRecord{
		{Chromosome: 1, Position: 2000, Reference: "T", Alternate: "C", Dosage: 0.1},
	}

	merged, err := Chromosome(refVariants, sparse, dosage, Options{})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	samp51 := merged[0].Samples[model.NumReferenceSamples]
	require.Equal(t, "0|1", samp51.Genotype)
	require.Equal(t, 1.0, samp51.Dosage)
	require.Equal(t, model.Genotyped, samp51.Provenance)
	require.Nil(t, samp51.ImputationQuality)
}

func TestChromosomeQualityFilter(t *testing.T) {
	r2 := 0.85
	refVariants := []model.ReferenceVariant{
		{Chromosome: 1, Position: 3000, Reference: "A", Alternate: "G", ImputationQuality: &r2, Genotypes: referenceSamples("0|0")},
	}

	merged, err := Chromosome(refVariants, nil, nil, Options{QualityThreshold: model.Quality090})
	require.NoError(t, err)
	require.Empty(t, merged)

	merged, err = Chromosome(refVariants, nil, nil, Options{QualityThreshold: model.Quality080})
	require.NoError(t, err)
	require.Len(t, merged, 1)
}

func TestChromosomeQualityFilterBoundary(t *testing.T) {
	r2 := 0.90
	refVariants := []model.ReferenceVariant{
		{Chromosome: 1, Position: 3000, Reference: "A", Alternate: "G", ImputationQuality: &r2, Genotypes: referenceSamples("0|0")},
	}

	merged, err := Chromosome(refVariants, nil, nil, Options{QualityThreshold: model.Quality090})
	require.NoError(t, err)
	require.Len(t, merged, 1)
}

func TestChromosomeStrandFlip(t *testing.T) {
	// Non-palindromic locus: ref=G, alt=A. The submitter's array reports
	// the opposite strand's bases, C and T (complements of G and A).
	refVariants := []model.ReferenceVariant{
		{Chromosome: 1, Position: 4000, Reference: "G", Alternate: "A", Genotypes: referenceSamples("0|0")},
	}
	sparse := []model.SparseGenotypeRecord{
		{Chromosome: 1, Position: 4000, Genotype: "CT"},
	}

	merged, err := Chromosome(refVariants, sparse, nil, Options{StrandFlip: false})
	require.NoError(t, err)
	samp51 := merged[0].Samples[model.NumReferenceSamples]
	require.Equal(t, model.Imputed, samp51.Provenance) // falls through to placeholder without strand flip

	merged, err = Chromosome(refVariants, sparse, nil, Options{StrandFlip: true})
	require.NoError(t, err)
	samp51 = merged[0].Samples[model.NumReferenceSamples]
	require.Equal(t, model.Genotyped, samp51.Provenance)
	require.Equal(t, 1.0, samp51.Dosage)
}

func TestChromosomeNoDataFallsBackToDosageThenPlaceholder(t *testing.T) {
	r2 := 0.5
	refVariants := []model.ReferenceVariant{
		{Chromosome: 1, Position: 5000, Reference: "A", Alternate: "C", ImputationQuality: &r2, Genotypes: referenceSamples("0|0")},
	}
	sparse := []model.SparseGenotypeRecord{
		{Chromosome: 1, Position: 5000, Genotype: "--"},
	}

	merged, err := Chromosome(refVariants, sparse, nil, Options{})
	require.NoError(t, err)
	samp51 := merged[0].Samples[model.NumReferenceSamples]
	require.Equal(t, "0|0", samp51.Genotype)
	require.Equal(t, 0.0, samp51.Dosage)
	require.Equal(t, model.Imputed, samp51.Provenance)
	require.NotNil(t, samp51.ImputationQuality)
	require.Equal(t, r2, *samp51.ImputationQuality)
}

func TestChromosomeSamp51GenotypedHasNoQuality(t *testing.T) {
	refVariants := []model.ReferenceVariant{
		{Chromosome: 1, Position: 6000, Reference: "T", Alternate: "C", Genotypes: referenceSamples("0|0")},
	}
	sparse := []model.SparseGenotypeRecord{
		{Chromosome: 1, Position: 6000, Genotype: "CC"},
	}

	merged, err := Chromosome(refVariants, sparse, nil, Options{})
	require.NoError(t, err)
	samp51 := merged[0].Samples[model.NumReferenceSamples]
	require.Equal(t, model.Genotyped, samp51.Provenance)
	require.Nil(t, samp51.ImputationQuality)
}

func TestDosageToGenotypeIdempotent(t *testing.T) {
	require.Equal(t, "0|0", dosageToGenotype(0.0))
	require.Equal(t, "0|1", dosageToGenotype(1.0))
	require.Equal(t, "1|1", dosageToGenotype(2.0))
}
