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

package runtime

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zymatik-com/genomerge/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeGzip(t *testing.T, path string, plaintext string) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeEmpty(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
}

func TestDiscoverRequiresAllDosageFiles(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, filepath.Join(dir, GenomeFileName))
	writeEmpty(t, filepath.Join(dir, DosageFileName(1)))

	_, err := discover(dir)
	require.ErrorContains(t, err, "chr2.dose.vcf.gz")
}

func TestDiscoverMissingGenomeFile(t *testing.T) {
	dir := t.TempDir()
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		writeEmpty(t, filepath.Join(dir, DosageFileName(chrom)))
	}

	_, err := discover(dir)
	require.ErrorContains(t, err, GenomeFileName)
}

func TestDiscoverPGSFileOptional(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, filepath.Join(dir, GenomeFileName))
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		writeEmpty(t, filepath.Join(dir, DosageFileName(chrom)))
	}

	inputs, err := discover(dir)
	require.NoError(t, err)
	require.Empty(t, inputs.pgsFile)
	require.Len(t, inputs.dosageFiles, numChromosomes)

	writeEmpty(t, filepath.Join(dir, PGSFileName))

	inputs, err = discover(dir)
	require.NoError(t, err)
	require.NotEmpty(t, inputs.pgsFile)
}

func TestValidateInputsAcceptsWellFormedUploads(t *testing.T) {
	dir := t.TempDir()

	genomePath := filepath.Join(dir, GenomeFileName)
	require.NoError(t, os.WriteFile(genomePath, []byte("# rsid\tchromosome\tposition\tgenotype\n# this is a 23andMe export\nrs1\t1\t100\tAA\n"), 0o644))

	dosageFiles := make(map[int]string, numChromosomes)
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		path := filepath.Join(dir, DosageFileName(chrom))
		writeGzip(t, path, "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\n1\t100\trs1\n")
		dosageFiles[chrom] = path
	}

	pgsPath := filepath.Join(dir, PGSFileName)
	require.NoError(t, os.WriteFile(pgsPath, []byte("rsid,effect_allele,weight\nrs1,A,0.01\n"), 0o644))

	inputs := discoveredInputs{genomeFile: genomePath, dosageFiles: dosageFiles, pgsFile: pgsPath}
	require.NoError(t, validateInputs(discardLogger(), inputs))
}

func TestValidateInputsRejectsNonGzipDosageFile(t *testing.T) {
	dir := t.TempDir()

	genomePath := filepath.Join(dir, GenomeFileName)
	require.NoError(t, os.WriteFile(genomePath, []byte("# 23andMe export\nrs1\t1\t100\tAA\n"), 0o644))

	dosageFiles := make(map[int]string, numChromosomes)
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		path := filepath.Join(dir, DosageFileName(chrom))
		if chrom == 1 {
			require.NoError(t, os.WriteFile(path, []byte("##fileformat=VCFv4.2\nnot actually gzipped\n"), 0o644))
		} else {
			writeGzip(t, path, "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\n1\t100\trs1\n")
		}
		dosageFiles[chrom] = path
	}

	inputs := discoveredInputs{genomeFile: genomePath, dosageFiles: dosageFiles}
	err := validateInputs(discardLogger(), inputs)
	require.ErrorContains(t, err, "chromosome 1")
}

func TestValidateInputsRejectsUnrecognizedGenomeContent(t *testing.T) {
	dir := t.TempDir()

	genomePath := filepath.Join(dir, GenomeFileName)
	require.NoError(t, os.WriteFile(genomePath, []byte("this is not a recognized export format\n"), 0o644))

	inputs := discoveredInputs{genomeFile: genomePath, dosageFiles: map[int]string{}}
	err := validateInputs(discardLogger(), inputs)
	require.ErrorContains(t, err, "genome file validation failed")
}

func TestIndexSparseByChromosome(t *testing.T) {
	records := []model.SparseGenotypeRecord{
		{RSID: "rs1", Chromosome: 1, Position: 100, Genotype: "AA"},
		{RSID: "rs2", Chromosome: 2, Position: 200, Genotype: "GG"},
		{RSID: "rs3", Chromosome: 1, Position: 300, Genotype: "CC"},
	}

	indexed := indexSparseByChromosome(records)

	require.Len(t, indexed[1], 2)
	require.Len(t, indexed[2], 1)
	require.Equal(t, "rs1", indexed[1][0].RSID)
	require.Equal(t, "rs3", indexed[1][1].RSID)
}
