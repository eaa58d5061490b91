package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cleared-dev/finscan/internal/importer"
	"github.com/cleared-dev/finscan/internal/mapper"
	"github.com/cleared-dev/finscan/internal/model"
)

// PreviewResult is a dry run of a mapping over a file.
type PreviewResult struct {
	Headers []string
	Total   int
	Records []model.CanonicalRecord // at most the requested limit
	Errors  []mapper.RowError
}

// Preview maps r under m without touching the store.
func Preview(ctx context.Context, m model.CsvMapping, r io.Reader, limit int) (PreviewResult, error) {
	cm, err := mapper.New(m)
	if err != nil {
		var ve model.ValidationErrors
		errors.As(err, &ve)
		return PreviewResult{}, &ConfigurationError{MappingID: m.ID, Problems: ve}
	}

	tbl, err := importer.ReadRows(ctx, r, m.SkipRows)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("reading csv: %w", err)
	}
	if err := cm.CheckHeaders(tbl.Headers); err != nil {
		var ve model.ValidationErrors
		errors.As(err, &ve)
		return PreviewResult{Headers: tbl.Headers}, &ConfigurationError{MappingID: m.ID, Problems: ve}
	}

	res := PreviewResult{Headers: tbl.Headers, Total: len(tbl.Rows)}
	for i, row := range tbl.Rows {
		rec, err := cm.Map(i+1, row)
		if err != nil {
			var re *mapper.RowError
			if errors.As(err, &re) {
				res.Errors = append(res.Errors, *re)
			}
			continue
		}
		if limit <= 0 || len(res.Records) < limit {
			res.Records = append(res.Records, rec)
		}
	}
	return res, nil
}
