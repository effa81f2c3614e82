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

// Package ioutil holds small shared I/O helpers in the style of the
// teacher's zymatik-com/nucleo package, re-homed onto the concrete
// libraries nucleo itself wraps.
package ioutil

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
)

// gzipMagic is the first three bytes of any member of the gzip family,
// which bgzip (a valid, block-structured gzip variant) also satisfies.
var gzipMagic = [3]byte{0x1f, 0x8b, 0x08}

// nopCloser adapts an io.Reader that has no Close method of its own.
type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// Decompress sniffs r for a gzip/bgzip magic prefix and, if present,
// returns a streaming gzip-decoding reader; otherwise it returns r
// unchanged. Dosage files are bgzip'd (chr{N}.dose.vcf.gz); bgzip is
// ordinary gzip as far as a standard decompressor is concerned, it is
// only the virtual-offset block index that bgzip adds on top.
func Decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	prefix, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not sniff input: %w", err)
	}

	if len(prefix) == 3 && prefix[0] == gzipMagic[0] && prefix[1] == gzipMagic[1] && prefix[2] == gzipMagic[2] {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("could not create gzip reader: %w", err)
		}
		return gz, nil
	}

	return nopCloser{br}, nil
}
