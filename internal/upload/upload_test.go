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

package upload

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassembleOrdersChunksByIndex(t *testing.T) {
	dir := t.TempDir()
	chunksDir := filepath.Join(dir, "chunks")
	targetDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(chunksDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(chunksDir, "big.vcf.gz_0001"), []byte("BBB"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chunksDir, "big.vcf.gz_0000"), []byte("AAA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chunksDir, "big.vcf.gz_0002"), []byte("CCC"), 0o644))

	require.NoError(t, Reassemble(chunksDir, targetDir))

	data, err := os.ReadFile(filepath.Join(targetDir, "big.vcf.gz"))
	require.NoError(t, err)
	require.Equal(t, "AAABBBCCC", string(data))

	_, err = os.Stat(chunksDir)
	require.True(t, os.IsNotExist(err))
}

func TestChunkKey(t *testing.T) {
	require.Equal(t, "chunk:sess-1:big.vcf.gz:3", ChunkKey("sess-1", "big.vcf.gz", 3))
}

func TestSanitizeFilename(t *testing.T) {
	name, err := SanitizeFilename("../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, "etcpasswd", name)

	_, err = SanitizeFilename(".hidden")
	require.Error(t, err)

	_, err = SanitizeFilename("###")
	require.Error(t, err)
}

func TestValidateExtension(t *testing.T) {
	require.NoError(t, ValidateExtension("genome.txt"))
	require.NoError(t, ValidateExtension("chr1.vcf.gz"))
	require.NoError(t, ValidateExtension("chr1.vcf.gz.tbi"))
	require.Error(t, ValidateExtension("genome.exe"))
}

func TestValidateMagicNumber(t *testing.T) {
	_, err := ValidateMagicNumber(strings.NewReader(string([]byte{0x1F, 0x8B, 0x08, 0x00})))
	require.NoError(t, err)

	_, err = ValidateMagicNumber(strings.NewReader("not gzip"))
	require.Error(t, err)
}

func TestSniffFormat(t *testing.T) {
	format, err := SniffFormat(strings.NewReader("# rsid\tchromosome\tposition\tgenotype\n# 23andMe\nrs1\t1\t100\tAA\n"))
	require.NoError(t, err)
	require.Equal(t, "genome", format)

	format, err = SniffFormat(strings.NewReader("##fileformat=VCFv4.2\n#CHROM\tPOS\n"))
	require.NoError(t, err)
	require.Equal(t, "dosage", format)

	format, err = SniffFormat(strings.NewReader("sample,PGS000008,PGS000006\ns1,1.0,2.0\n"))
	require.NoError(t, err)
	require.Equal(t, "pgs", format)
}

func TestSHA256(t *testing.T) {
	digest, err := SHA256(strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
}

func TestValidateFilePlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genome.txt")
	content := "# rsid\tchromosome\tposition\tgenotype\n# 23andMe\nrs1\t1\t100\tAA\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	digest, err := ValidateFile(path, FileTypeGenome)
	require.NoError(t, err)

	want, err := SHA256(strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, want, digest)
}

func TestValidateFileDosageDecompressesBeforeSniffing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chr1.dose.vcf.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("##fileformat=VCFv4.2\n#CHROM\tPOS\tID\n1\t100\trs1\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	digest, err := ValidateFile(path, FileTypeDosage)
	require.NoError(t, err)
	require.NotEmpty(t, digest)
}

func TestValidateFileRejectsBadMagicNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chr1.dose.vcf.gz")
	require.NoError(t, os.WriteFile(path, []byte("##fileformat=VCFv4.2\nthis is not gzip\n"), 0o644))

	_, err := ValidateFile(path, FileTypeDosage)
	require.Error(t, err)
}

func TestValidateFileRejectsUnrecognizedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.pgs")
	require.NoError(t, os.WriteFile(path, []byte("onesingleunbrokenword"), 0o644))

	_, err := ValidateFile(path, FileTypePGS)
	require.Error(t, err)
}
