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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zymatik-com/genomerge/internal/upload"
)

// Fixed on-disk names the upload handler (internal/httpapi) writes a
// job's three artifacts under, and the worker looks for at the start of
// a run (spec §4.5 "discovery").
const (
	GenomeFileName = "genome.txt"
	PGSFileName    = "scores.pgs"
)

// DosageFileName returns the per-chromosome dosage file name
// (spec §4.2 "chr{N}.dose.vcf.gz").
func DosageFileName(chromosome int) string {
	return fmt.Sprintf("chr%d.dose.vcf.gz", chromosome)
}

type discoveredInputs struct {
	genomeFile  string
	dosageFiles map[int]string
	pgsFile     string
}

// discover locates the three upload artifacts within uploadDir. The
// genome file and dosage files are required; the PGS table is optional
// (a job may merge variant data without a polygenic score table).
func discover(uploadDir string) (discoveredInputs, error) {
	genomePath := filepath.Join(uploadDir, GenomeFileName)
	if !fileExists(genomePath) {
		return discoveredInputs{}, fmt.Errorf("missing required genome file %s", GenomeFileName)
	}

	dosageFiles := make(map[int]string, numChromosomes)
	for chrom := 1; chrom <= numChromosomes; chrom++ {
		name := DosageFileName(chrom)
		path := filepath.Join(uploadDir, name)
		if !fileExists(path) {
			return discoveredInputs{}, fmt.Errorf("missing required dosage file %s", name)
		}
		dosageFiles[chrom] = path
	}

	pgsPath := filepath.Join(uploadDir, PGSFileName)
	if !fileExists(pgsPath) {
		pgsPath = ""
	}

	return discoveredInputs{
		genomeFile:  genomePath,
		dosageFiles: dosageFiles,
		pgsFile:     pgsPath,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// validateInputs runs the content half of spec §6's validation pipeline
// (magic number, format sniff, SHA-256) over every discovered artifact.
// This is the point where a direct multipart submit and a reassembled
// chunked upload converge on a complete file set, so it is the one place
// that needs to run regardless of which upload path produced the files.
func validateInputs(logger *slog.Logger, inputs discoveredInputs) error {
	genomeDigest, err := upload.ValidateFile(inputs.genomeFile, upload.FileTypeGenome)
	if err != nil {
		return fmt.Errorf("genome file validation failed: %w", err)
	}
	logger.Info("upload validated", "file", filepath.Base(inputs.genomeFile), "sha256", genomeDigest)

	for chrom := 1; chrom <= numChromosomes; chrom++ {
		path := inputs.dosageFiles[chrom]
		digest, err := upload.ValidateFile(path, upload.FileTypeDosage)
		if err != nil {
			return fmt.Errorf("dosage file validation failed (chromosome %d): %w", chrom, err)
		}
		logger.Info("upload validated", "file", filepath.Base(path), "sha256", digest)
	}

	if inputs.pgsFile != "" {
		digest, err := upload.ValidateFile(inputs.pgsFile, upload.FileTypePGS)
		if err != nil {
			return fmt.Errorf("pgs file validation failed: %w", err)
		}
		logger.Info("upload validated", "file", filepath.Base(inputs.pgsFile), "sha256", digest)
	}

	return nil
}
