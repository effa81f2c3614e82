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

// Package merge implements the per-chromosome 51-sample join (C3): the
// reference panel, the submitter's sparse genotypes, and the submitter's
// imputed dosages.
package merge

import "strings"

var complement = map[byte]byte{
	'A': 'T',
	'T': 'A',
	'C': 'G',
	'G': 'C',
	'-': '-',
}

// complementAllele complements every nucleotide character in s, leaving
// '-' unchanged.
func complementAllele(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c, ok := complement[s[i]]
		if !ok {
			return s // non-nucleotide content, leave untouched
		}
		b[i] = c
	}
	return string(b)
}

// genotypeToDosage converts a two-character sparse genotype into a dosage
// of alternate-allele copies, given the reference variant's alleles. It
// returns ok=false when the genotype is unresolvable: empty/missing,
// indel alleles (ref/alt longer than one character), or a mismatch even
// after an optional strand-flip retry.
func genotypeToDosage(genotype, ref, alt string, allowStrandFlip bool) (dosage float64, ok bool) {
	if len(genotype) != 2 || genotype == "--" {
		return 0, false
	}
	if len(ref) != 1 || len(alt) != 1 {
		// Indels are unresolvable on the sparse genotyping path.
		return 0, false
	}

	if d, ok := matchAlleles(genotype, ref, alt); ok {
		return d, true
	}

	if allowStrandFlip {
		flipped := complementAllele(genotype)
		if d, ok := matchAlleles(flipped, ref, alt); ok {
			return d, true
		}
	}

	return 0, false
}

// matchAlleles counts how many of the genotype's two characters match the
// alternate allele, returning ok=false if either character matches
// neither the reference nor the alternate allele.
func matchAlleles(genotype, ref, alt string) (float64, bool) {
	count := 0
	for i := 0; i < len(genotype); i++ {
		c := string(genotype[i])
		switch c {
		case alt:
			count++
		case ref:
			// matches reference, contributes 0
		default:
			return 0, false
		}
	}
	return float64(count), true
}

// dosageToGenotype renders a dosage value as a phased genotype string,
// used when emitting samp51 from a dosage record that has no sparse
// genotype backing it.
func dosageToGenotype(dosage float64) string {
	switch {
	case dosage < 0.5:
		return "0|0"
	case dosage < 1.5:
		return "0|1"
	default:
		return "1|1"
	}
}

// referenceDosage computes the dosage implied by a reference-panel
// genotype string such as "0|0", "0/1" or "1|1". "./." (and any other
// missing-style encoding) is treated as dosage 0.0.
func referenceDosage(genotype string) float64 {
	sep := "|"
	if strings.Contains(genotype, "/") {
		sep = "/"
	}

	alleles := strings.Split(genotype, sep)

	sum := 0.0
	for _, a := range alleles {
		switch a {
		case "0":
			// contributes 0
		case "1":
			sum++
		default:
			// "." or anything else is missing; contributes 0.
		}
	}

	return sum
}
