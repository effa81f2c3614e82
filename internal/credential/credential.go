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

// Package credential mints and verifies one-shot download credentials
// (C5 §4.5 "Credentialing"): a stored token, a password shown once and
// never stored, and its Argon2id hash.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id tuning per spec §4.5.
const (
	argonMemoryKiB   = 47104
	argonIterations  = 3
	argonParallelism = 4
	argonSaltLen     = 16
	argonKeyLen      = 32
)

// passwordAlphabet excludes ambiguous glyphs: no I/O/l/o, per spec §4.5.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789!@#$%^&*"

const passwordLength = 16

// Token generates a 32-byte random value, URL-safe base64 without
// padding (≈43 characters).
func Token() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Password generates a 16-character password drawn uniformly from
// passwordAlphabet using rejection sampling to avoid modulo bias.
func Password() (string, error) {
	var sb strings.Builder
	sb.Grow(passwordLength)

	alphabetLen := len(passwordAlphabet)
	// Largest multiple of alphabetLen that fits in a byte; values at or
	// above this are rejected and redrawn so every letter has equal
	// probability.
	limit := 256 - (256 % alphabetLen)

	buf := make([]byte, 1)
	for sb.Len() < passwordLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("could not generate password: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		sb.WriteByte(passwordAlphabet[int(buf[0])%alphabetLen])
	}

	return sb.String(), nil
}

// Hash computes the Argon2id v1.3 hash of password under a fresh random
// salt, encoded as "salt_b64$hash_b64" for storage.
func Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("could not generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonParallelism, argonKeyLen)

	encoded := base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(hash)
	return encoded, nil
}

// Verify checks password against an encoded hash produced by Hash, in
// constant time.
func Verify(password, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("malformed credential hash")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("could not decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("could not decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonParallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
