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

package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenLengthAndCharset(t *testing.T) {
	token, err := Token()
	require.NoError(t, err)
	require.Len(t, token, 43)
	require.False(t, strings.ContainsAny(token, "+/="))
}

func TestPasswordExcludesAmbiguousGlyphs(t *testing.T) {
	password, err := Password()
	require.NoError(t, err)
	require.Len(t, password, passwordLength)
	require.False(t, strings.ContainsAny(password, "IOlo"))
}

func TestHashVerifyRoundTrip(t *testing.T) {
	encoded, err := Hash("correct horse battery staple")
	require.NoError(t, err)

	ok, err := Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("wrong password", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashUsesFreshSaltEachTime(t *testing.T) {
	a, err := Hash("same-password")
	require.NoError(t, err)
	b, err := Hash("same-password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
