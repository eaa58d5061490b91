package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cleared-dev/finscan/internal/mapper"
)

// ErrNoHeader is returned when nothing is left after the skipped lines.
var ErrNoHeader = errors.New("csv has no header row")

// Table is a decoded CSV file.
type Table struct {
	Headers []string
	Rows    []mapper.Row
}

// ReadRows decodes a bank export. A UTF-8 or UTF-16 byte-order mark is
// honoured and removed, skip physical lines are discarded, and the next
// record is taken as the header.
func ReadRows(ctx context.Context, r io.Reader, skip int) (Table, error) {
	br := bufio.NewReader(transform.NewReader(r, xunicode.BOMOverride(xunicode.UTF8.NewDecoder())))
	for i := 0; i < skip; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return Table{}, ErrNoHeader
			}
			return Table{}, fmt.Errorf("skipping line %d: %w", i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, ErrNoHeader
		}
		return Table{}, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := Table{Headers: header}
	for {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return t, fmt.Errorf("reading row %d: %w", len(t.Rows)+1, err)
		}
		row := make(mapper.Row, len(header))
		for i, v := range rec {
			if i < len(header) {
				row[header[i]] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
}

// ReadHeaders returns only the header row, for format detection.
func ReadHeaders(r io.Reader, skip int) ([]string, error) {
	t, err := ReadRows(context.Background(), io.LimitReader(r, 64<<10), skip)
	if len(t.Headers) == 0 {
		return nil, err
	}
	return t.Headers, nil
}
