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
	"bufio"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/biogo/hts/bgzf"

	"github.com/zymatik-com/genomerge/internal/model"
)

// vcfWriter emits the bioinformatics-wire format (C4 "Bioinformatics-wire
// format"): bgzip'd, either one file across all 22 chromosomes or one
// file per chromosome.
type vcfWriter struct {
	dir    string
	layout model.VCFLayout

	mergedPath    string
	mergedFile    *os.File
	merged        *bgzf.Writer
	headerWritten bool

	perChromFiles []string
}

func newVCFWriter(outputDir string, layout model.VCFLayout) (*vcfWriter, error) {
	dir := filepath.Join(outputDir, "vcf")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	v := &vcfWriter{dir: dir, layout: layout}

	if layout == model.VCFMerged {
		path := filepath.Join(dir, "merged.vcf.gz")
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not create %s: %w", path, err)
		}
		bw, err := bgzf.NewWriter(f, flate.DefaultCompression)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("could not create bgzf writer for %s: %w", path, err)
		}

		v.mergedPath = path
		v.mergedFile = f
		v.merged = bw
	}

	return v, nil
}

func (v *vcfWriter) append(chromosome int, variants []model.MergedVariant) error {
	switch v.layout {
	case model.VCFPerChromosome:
		return v.appendPerChromosome(chromosome, variants)
	default:
		return v.appendMerged(chromosome, variants)
	}
}

func (v *vcfWriter) appendMerged(chromosome int, variants []model.MergedVariant) error {
	bw := bufio.NewWriter(v.merged)

	if !v.headerWritten {
		writeVCFHeader(bw)
		v.headerWritten = true
	}

	for _, variant := range variants {
		writeVCFRecord(bw, variant)
	}

	return bw.Flush()
}

func (v *vcfWriter) appendPerChromosome(chromosome int, variants []model.MergedVariant) error {
	path := filepath.Join(v.dir, fmt.Sprintf("chr%d.vcf.gz", chromosome))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer f.Close()

	bw, err := bgzf.NewWriter(f, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("could not create bgzf writer for %s: %w", path, err)
	}

	buf := bufio.NewWriter(bw)
	writeVCFHeader(buf)
	for _, variant := range variants {
		writeVCFRecord(buf, variant)
	}

	if err := buf.Flush(); err != nil {
		bw.Close()
		return fmt.Errorf("could not flush %s: %w", path, err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("could not close bgzf writer for %s: %w", path, err)
	}

	v.perChromFiles = append(v.perChromFiles, path)

	return nil
}

func (v *vcfWriter) finalize(_ Metadata) error {
	if v.layout != model.VCFMerged {
		return nil
	}

	if err := v.merged.Close(); err != nil {
		return fmt.Errorf("could not close bgzf writer for %s: %w", v.mergedPath, err)
	}
	return v.mergedFile.Close()
}

func (v *vcfWriter) paths() []string {
	if v.layout == model.VCFMerged {
		return []string{v.mergedPath}
	}
	return v.perChromFiles
}

// writeVCFHeader writes one VCFv4.3 header block: meta lines, INFO/FORMAT
// descriptors and the column row (samp1..samp50 then user).
func writeVCFHeader(w io.Writer) {
	fmt.Fprintf(w, "##fileformat=VCFv4.3\n")
	fmt.Fprintf(w, "##fileDate=%s\n", time.Now().Format("20060102"))
	fmt.Fprintf(w, "##source=genomerge\n")
	fmt.Fprintf(w, "##INFO=<ID=AF,Number=1,Type=Float,Description=\"Allele Frequency\">\n")
	fmt.Fprintf(w, "##INFO=<ID=MAF,Number=1,Type=Float,Description=\"Minor Allele Frequency\">\n")
	fmt.Fprintf(w, "##INFO=<ID=TYPED,Number=0,Type=Flag,Description=\"Directly genotyped on the reference array\">\n")
	fmt.Fprintf(w, "##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n")
	fmt.Fprintf(w, "##FORMAT=<ID=DS,Number=1,Type=Float,Description=\"Estimated Alternate Allele Dosage\">\n")
	fmt.Fprintf(w, "##FORMAT=<ID=IQ,Number=1,Type=Float,Description=\"Imputation Quality (R-squared)\">\n")

	columns := []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}
	for i := 1; i <= model.NumReferenceSamples; i++ {
		columns = append(columns, fmt.Sprintf("samp%d", i))
	}
	columns = append(columns, "user")

	fmt.Fprintln(w, strings.Join(columns, "\t"))
}

// writeVCFRecord writes one variant line: chr{N}\tPOS\tID\tREF\tALT\t.\t.\tINFO\tGT:DS:IQ\t<51 cells>.
func writeVCFRecord(w io.Writer, v model.MergedVariant) {
	id := v.RSID
	if id == "" {
		id = "."
	}

	info := vcfInfo(v)

	fmt.Fprintf(w, "chr%d\t%d\t%s\t%s\t%s\t.\t.\t%s\tGT:DS:IQ",
		v.Chromosome, v.Position, id, v.Reference, v.Alternate, info)

	for _, s := range v.Samples {
		iq := "."
		if s.ImputationQuality != nil {
			iq = fmt.Sprintf("%.3f", *s.ImputationQuality)
		}
		fmt.Fprintf(w, "\t%s:%.3f:%s", s.Genotype, s.Dosage, iq)
	}
	fmt.Fprint(w, "\n")
}

func vcfInfo(v model.MergedVariant) string {
	var parts []string
	if v.AlleleFrequency != nil {
		parts = append(parts, fmt.Sprintf("AF=%.6f", *v.AlleleFrequency))
	}
	if v.MinorAlleleFreq != nil {
		parts = append(parts, fmt.Sprintf("MAF=%.6f", *v.MinorAlleleFreq))
	}
	if v.Typed {
		parts = append(parts, "TYPED")
	}
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, ";")
}
