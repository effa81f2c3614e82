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
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/klauspost/pgzip"
)

// FileType selects the size limit and format sniff applied to an upload.
type FileType string

const (
	FileTypeGenome FileType = "genome" // consumer-grade sparse export
	FileTypeDosage FileType = "dosage" // per-chromosome imputed VCF
	FileTypePGS    FileType = "pgs"    // polygenic score table
	FileTypeChunk  FileType = "chunk"  // one chunk of a chunked upload
)

// MaxSize returns the per-file-type size limit from spec §6.
func (t FileType) MaxSize() int64 {
	const mib = 1 << 20
	switch t {
	case FileTypeGenome:
		return 100 * mib
	case FileTypeDosage:
		return 200 * mib
	case FileTypePGS:
		return 10 * mib
	case FileTypeChunk:
		return 50 * mib
	default:
		return 0
	}
}

// sanitizeNameRE keeps only the characters spec §6 allows in a filename.
var sanitizeNameRE = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename strips path separators and control bytes, keeps only
// [A-Za-z0-9_.-], truncates to 255 characters and rejects a leading dot.
func SanitizeFilename(name string) (string, error) {
	stripped := strings.ReplaceAll(name, "/", "")
	stripped = strings.ReplaceAll(stripped, "\\", "")

	cleaned := sanitizeNameRE.ReplaceAllString(stripped, "")
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	if cleaned == "" {
		return "", fmt.Errorf("filename is empty after sanitization")
	}
	if strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("filename must not begin with a dot")
	}

	return cleaned, nil
}

// allowedExtensions is the extension allowlist from spec §6.
var allowedExtensions = []string{"txt", "vcf.gz", "vcf.gz.tbi", "pgs"}

// ValidateExtension checks that name ends in one of the allowed
// extensions (checked longest-suffix-first so "vcf.gz.tbi" isn't
// shadowed by "vcf.gz").
func ValidateExtension(name string) error {
	lower := strings.ToLower(name)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return nil
		}
	}
	return fmt.Errorf("extension not in allowlist: %s", name)
}

// gzipMagic is the three-byte magic-number prefix for the gzip family.
var gzipMagic = []byte{0x1F, 0x8B, 0x08}

// ValidateMagicNumber confirms the first three bytes of r match the
// gzip-family magic number, then returns a reader that still yields the
// full stream (the peeked bytes are not lost).
func ValidateMagicNumber(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 3)

	prefix, err := br.Peek(3)
	if err != nil {
		return nil, fmt.Errorf("could not read magic number: %w", err)
	}

	for i, b := range gzipMagic {
		if prefix[i] != b {
			return nil, fmt.Errorf("not a gzip-family file (bad magic number)")
		}
	}

	return br, nil
}

// SniffFormat inspects the first non-comment line of an already-
// decompressed stream and classifies it per spec §6: a "23andMe" tag for
// the sparse export, a VCFv4 header for the dosage file, or at least two
// comma/tab-delimited columns for a PGS table.
func SniffFormat(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		switch {
		case strings.Contains(line, "23andMe"):
			return "genome", nil
		case strings.HasPrefix(line, "##fileformat=VCFv4."):
			return "dosage", nil
		case !strings.HasPrefix(line, "#") && countColumns(line) >= 2:
			return "pgs", nil
		case strings.HasPrefix(line, "#"):
			continue
		default:
			return "", fmt.Errorf("unrecognized file format")
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("could not scan file: %w", err)
	}

	return "", fmt.Errorf("file has no non-comment content")
}

func countColumns(line string) int {
	if strings.Contains(line, ",") {
		return len(strings.Split(line, ","))
	}
	return len(strings.Fields(line))
}

// SHA256 hashes r and returns the lowercase hex digest recorded alongside
// the upload (spec §6 "SHA-256 hash recorded").
func SHA256(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("could not hash upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateFile runs the content half of spec §6's validation pipeline
// against a file already written to disk: the gzip magic-number check for
// dosage files, a post-decompression format sniff, and a SHA-256 digest.
// It returns the digest for the caller to record. Filename sanitization
// and the extension allowlist are checked earlier, against the name the
// submitter supplied, since the fixed on-disk name this path points at is
// an internal convention rather than user input.
func ValidateFile(path string, fileType FileType) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("could not stat %s: %w", path, err)
	}
	if info.Size() > fileType.MaxSize() {
		return "", fmt.Errorf("%s exceeds maximum size", path)
	}

	sniffFile, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", path, err)
	}

	var sniffSrc io.Reader = sniffFile
	if fileType == FileTypeDosage {
		gzipStream, err := ValidateMagicNumber(sniffFile)
		if err != nil {
			sniffFile.Close()
			return "", fmt.Errorf("%s: %w", path, err)
		}
		gz, err := pgzip.NewReader(gzipStream)
		if err != nil {
			sniffFile.Close()
			return "", fmt.Errorf("could not decompress %s: %w", path, err)
		}
		defer gz.Close()
		sniffSrc = gz
	}

	_, sniffErr := SniffFormat(sniffSrc)
	sniffFile.Close()
	if sniffErr != nil {
		return "", fmt.Errorf("%s: %w", path, sniffErr)
	}

	hashFile, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not reopen %s for hashing: %w", path, err)
	}
	defer hashFile.Close()

	return SHA256(hashFile)
}
