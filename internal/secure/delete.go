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

// Package secure overwrites a submitter's genomic files before unlinking
// them, so a terminal job's data doesn't just become an unreferenced row
// but keeps living on disk until the filesystem happens to reuse those
// blocks.
package secure

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RemoveAll securely deletes path. Every regular file beneath it has its
// contents overwritten with random data and fsynced before being
// unlinked; directories are removed once empty. A missing path is not an
// error, matching os.RemoveAll's behavior.
func RemoveAll(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := overwriteFile(path, info.Size()); err != nil {
			return err
		}
		return os.Remove(path)
	}

	walkErr := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		return overwriteFile(p, fi.Size())
	})
	if walkErr != nil {
		return fmt.Errorf("could not securely wipe %s: %w", path, walkErr)
	}

	return os.RemoveAll(path)
}

// overwriteFile replaces a regular file's contents with random bytes of
// the same length before it is removed by the caller.
func overwriteFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("could not open %s for overwrite: %w", path, err)
	}

	if _, err := io.CopyN(f, rand.Reader, size); err != nil {
		f.Close()
		return fmt.Errorf("could not overwrite %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("could not sync %s: %w", path, err)
	}

	return f.Close()
}
