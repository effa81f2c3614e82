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

// Package archive bundles a job's output directory into a single
// download (C5 §4.5 "Archive building"). Contents are already compressed
// (Snappy parquet, bgzip'd VCF) so the archive itself uses the zip
// Store method rather than re-compressing.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Build creates "results_{job_id}.zip" in outputDir, containing every
// other file in that directory at the archive root, and returns its
// path.
func Build(outputDir, jobID string) (string, error) {
	archiveName := fmt.Sprintf("results_%s.zip", jobID)
	archivePath := filepath.Join(outputDir, archiveName)

	entries, err := collectFiles(outputDir, archiveName)
	if err != nil {
		return "", err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("could not create %s: %w", archivePath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if err := addStored(zw, outputDir, entry); err != nil {
			zw.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("could not finalize %s: %w", archivePath, err)
	}

	return archivePath, nil
}

// collectFiles walks outputDir recursively, returning every regular
// file's path relative to outputDir except the archive itself.
func collectFiles(outputDir, skipName string) ([]string, error) {
	var files []string

	err := filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Base(path) == skipName {
			return nil
		}

		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return fmt.Errorf("could not compute relative path for %s: %w", path, err)
		}
		files = append(files, rel)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not walk %s: %w", outputDir, err)
	}

	return files, nil
}

func addStored(zw *zip.Writer, outputDir, rel string) error {
	fullPath := filepath.Join(outputDir, rel)

	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", fullPath, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("could not build zip header for %s: %w", fullPath, err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("could not create zip entry for %s: %w", rel, err)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", fullPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("could not write %s to archive: %w", rel, err)
	}

	return nil
}
