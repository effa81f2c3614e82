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

package writer

import (
	"fmt"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/zymatik-com/genomerge/internal/model"
)

// parquetBatchVariants is the approximate number of variants per row
// batch (≈10,000 variants * 51 samples/variant ≈ 510,000 rows) before the
// underlying writer is asked to flush its current row group.
const parquetBatchVariants = 10_000

const parquetRowGroupSize = 256 * 1024 * 1024 // 256MiB per row group

// parquetRow is one (variant, sample) row of the columnar schema in
// spec §4.4.
type parquetRow struct {
	RSID               string   `parquet:"name=rsid, type=BYTE_ARRAY, convertedtype=UTF8"`
	Chromosome         uint64   `parquet:"name=chromosome, type=INT64, convertedtype=UINT_64"`
	Position           uint64   `parquet:"name=position, type=INT64, convertedtype=UINT_64"`
	RefAllele          string   `parquet:"name=ref_allele, type=BYTE_ARRAY, convertedtype=UTF8"`
	AltAllele          string   `parquet:"name=alt_allele, type=BYTE_ARRAY, convertedtype=UTF8"`
	AlleleFreq         *float64 `parquet:"name=allele_freq, type=DOUBLE, repetitiontype=OPTIONAL"`
	MinorAlleleFreq    *float64 `parquet:"name=minor_allele_freq, type=DOUBLE, repetitiontype=OPTIONAL"`
	IsTyped            uint64   `parquet:"name=is_typed, type=INT64, convertedtype=UINT_64"`
	SampleID           string   `parquet:"name=sample_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Genotype           string   `parquet:"name=genotype, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dosage             float64  `parquet:"name=dosage, type=DOUBLE"`
	Source             string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImputationQuality  *float64 `parquet:"name=imputation_quality, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// parquetWriter writes one self-contained, Snappy-compressed columnar file
// per chromosome. The 22 files are kept as a partitioned dataset; they are
// never concatenated.
type parquetWriter struct {
	dir   string
	files []string
}

func newParquetWriter(outputDir string) (*parquetWriter, error) {
	dir := filepath.Join(outputDir, "parquet")
	return &parquetWriter{dir: dir}, nil
}

func (p *parquetWriter) append(chromosome int, variants []model.MergedVariant) error {
	if err := ensureDir(p.dir); err != nil {
		return err
	}

	path := filepath.Join(p.dir, fmt.Sprintf("chr%d.parquet", chromosome))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return fmt.Errorf("could not create parquet writer for %s: %w", path, err)
	}

	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	pw.RowGroupSize = parquetRowGroupSize

	written := 0
	for _, v := range variants {
		for _, s := range v.Samples {
			row := parquetRow{
				RSID:              v.RSID,
				Chromosome:        uint64(v.Chromosome),
				Position:          v.Position,
				RefAllele:         v.Reference,
				AltAllele:         v.Alternate,
				AlleleFreq:        v.AlleleFrequency,
				MinorAlleleFreq:   v.MinorAlleleFreq,
				IsTyped:           boolToUint64(v.Typed),
				SampleID:          s.SampleID,
				Genotype:          s.Genotype,
				Dosage:            s.Dosage,
				Source:            string(s.Provenance),
				ImputationQuality: s.ImputationQuality,
			}

			if err := pw.Write(row); err != nil {
				return fmt.Errorf("could not write row to %s: %w", path, err)
			}
			written++
		}

		// Flush in fixed-size batches so the writer's internal buffers
		// don't grow unbounded across a large chromosome.
		if written >= parquetBatchVariants*model.NumTotalSamples {
			if err := pw.Flush(true); err != nil {
				return fmt.Errorf("could not flush %s: %w", path, err)
			}
			written = 0
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("could not close parquet writer for %s: %w", path, err)
	}

	p.files = append(p.files, path)

	return nil
}

func (p *parquetWriter) finalize(_ Metadata) error {
	return nil
}

func (p *parquetWriter) paths() []string {
	return []string{p.dir}
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
