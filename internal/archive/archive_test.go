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

package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildContainsAllFilesStored(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chr1.parquet"), []byte("parquet-bytes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vcf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vcf", "merged.vcf.gz"), []byte("vcf-bytes"), 0o644))

	archivePath, err := Build(dir, "job-123")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "results_job-123.zip"), archivePath)

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer zr.Close()

	names := make(map[string]uint16)
	for _, f := range zr.File {
		names[f.Name] = f.Method
	}

	require.Contains(t, names, "chr1.parquet")
	require.Contains(t, names, "vcf/merged.vcf.gz")
	require.NotContains(t, names, "results_job-123.zip")

	for name, method := range names {
		require.Equal(t, uint16(zip.Store), method, "file %s should be stored uncompressed", name)
	}
}
