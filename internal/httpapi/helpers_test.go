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

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zymatik-com/genomerge/internal/model"
)

func TestRequestIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/download", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.RemoteAddr = "10.0.0.1:54321"

	require.Equal(t, "203.0.113.9", requestIP(r))
}

func TestRequestIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/download", nil)
	r.RemoteAddr = "198.51.100.4:8080"

	require.Equal(t, "198.51.100.4", requestIP(r))
}

func TestRequestIPUnknownWhenUnparsable(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/download", nil)
	r.RemoteAddr = "not-an-address"

	require.Equal(t, "unknown", requestIP(r))
}

func TestFormatsToStrings(t *testing.T) {
	out := formatsToStrings([]model.OutputFormat{model.FormatParquet, model.FormatVCF})
	require.Equal(t, []string{"parquet", "vcf"}, out)
}

func TestParseOutputFormatsDefault(t *testing.T) {
	require.Equal(t, []model.OutputFormat{model.FormatParquet, model.FormatVCF}, parseOutputFormats(""))
}

func TestParseOutputFormatsExplicit(t *testing.T) {
	formats := parseOutputFormats("sqlite, vcf")
	require.Equal(t, []model.OutputFormat{model.FormatSQLite, model.FormatVCF}, formats)
}

func TestParseQualityThreshold(t *testing.T) {
	require.Equal(t, model.QualityNone, parseQualityThreshold("none"))
	require.Equal(t, model.Quality080, parseQualityThreshold("r080"))
	require.Equal(t, model.Quality090, parseQualityThreshold(""))
	require.Equal(t, model.Quality090, parseQualityThreshold("bogus"))
}

func TestParseVCFLayout(t *testing.T) {
	require.Equal(t, model.VCFPerChromosome, parseVCFLayout("per_chromosome"))
	require.Equal(t, model.VCFMerged, parseVCFLayout(""))
}

func TestDosageChromosomeFromFilename(t *testing.T) {
	chrom, err := dosageChromosomeFromFilename("chr7.dose.vcf.gz")
	require.NoError(t, err)
	require.Equal(t, 7, chrom)

	_, err = dosageChromosomeFromFilename("genome.txt")
	require.Error(t, err)

	_, err = dosageChromosomeFromFilename("chr23.dose.vcf.gz")
	require.Error(t, err)
}
