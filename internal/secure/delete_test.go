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

package secure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveAllWipesAndRemovesDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	filePath := filepath.Join(nested, "genome.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("rs123\tA\tA\n"), 0o644))

	require.NoError(t, RemoveAll(dir))

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestRemoveAllSingleFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "result.zip")
	require.NoError(t, os.WriteFile(filePath, []byte("some archive contents"), 0o644))

	require.NoError(t, RemoveAll(filePath))

	_, err := os.Stat(filePath)
	require.True(t, os.IsNotExist(err))
}

func TestRemoveAllMissingPathIsNotError(t *testing.T) {
	require.NoError(t, RemoveAll(filepath.Join(t.TempDir(), "does-not-exist")))
}
