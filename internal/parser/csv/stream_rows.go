// Package csv reads one CSV source into header-aligned records for the
// analyzer and the loader. Inputs come from scrapers, so the reader is
// deliberately forgiving: BOM stripped, quoting lax by default, misaligned
// records skipped and reported instead of aborting the file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"nbaload/internal/config"
)

// StreamRows parses CSV from src and invokes fn once per data row.
//
// The header is the first record, BOM-stripped and trimmed, optionally
// renamed through the "header_map" option; it is returned after the full
// read so callers can align the positional records they collected. Records
// whose field count differs from the header are reported through onErr and
// skipped. Cells are trimmed and empty cells become nil. Cell text that is
// not valid UTF-8 is re-decoded as Windows-1252; the "charset" option
// ("windows-1252") forces that decoding for the whole stream instead.
//
// fn returning an error aborts the read and surfaces that error.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	fn func(line int, rec []any) error,
	onErr func(line int, err error),
) ([]string, error) {
	var line int

	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	lazy := opt.Bool("lazy_quotes", true)
	hm := opt.StringMap("header_map")

	if opt.String("charset", "") == "windows-1252" {
		src = transform.NewReader(src, charmap.Windows1252.NewDecoder())
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1 // field counts validated against the header

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if mapped, ok := hm[h]; ok {
			h = mapped
		}
		header[i] = decodeCell(h)
	}

	for {
		select {
		case <-ctx.Done():
			return header, ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return header, nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if len(rec) != len(header) {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %d fields, header has %d", len(rec), len(header)))
			}
			continue
		}

		out := make([]any, len(header))
		for i, v := range rec {
			if trim {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				out[i] = nil
				continue
			}
			out[i] = decodeCell(v)
		}
		if err := fn(line, out); err != nil {
			return header, err
		}
	}
}

// decodeCell repairs a cell that is not valid UTF-8 by reading its bytes as
// Windows-1252, the encoding the scraped exports fall back to.
func decodeCell(v string) string {
	if utf8.ValidString(v) {
		return v
	}
	fixed, err := charmap.Windows1252.NewDecoder().String(v)
	if err != nil {
		return v
	}
	return fixed
}
