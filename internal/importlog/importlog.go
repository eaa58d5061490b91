// Package importlog keeps an append-only CSV audit trail of import batches.
package importlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cleared-dev/finscan/internal/pipeline"
)

// Entry is one row in the import log.
type Entry struct {
	Timestamp  time.Time
	BatchID    string
	AccountID  int64
	MappingID  int64
	Source     string
	Status     string
	Imported   int
	Duplicates int
	Errors     int
	Detail     string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,batch_id,account_id,mapping_id,source,status,imported,duplicates,errors,detail"

const (
	numFields     = 10
	logDir        = "logs"
	logFile       = "logs/import-log.csv"
	colTimestamp  = 0
	colBatchID    = 1
	colAccountID  = 2
	colMappingID  = 3
	colSource     = 4
	colStatus     = 5
	colImported   = 6
	colDuplicates = 7
	colErrors     = 8
	colDetail     = 9
)

// FromBatch builds an entry from a finished (or aborted) batch.
func FromBatch(res pipeline.BatchResult, source string, err error, now time.Time) Entry {
	e := Entry{
		Timestamp:  now.UTC(),
		BatchID:    res.BatchID,
		AccountID:  res.AccountID,
		MappingID:  res.MappingID,
		Source:     source,
		Status:     string(res.State),
		Imported:   res.Imported,
		Duplicates: res.Duplicates,
		Errors:     len(res.Errors),
	}
	if err != nil {
		e.Detail = err.Error()
		if res.State != pipeline.StateAborted {
			e.Status = "failed"
		}
	}
	return e
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colBatchID] = e.BatchID
	row[colAccountID] = strconv.FormatInt(e.AccountID, 10)
	row[colMappingID] = strconv.FormatInt(e.MappingID, 10)
	row[colSource] = e.Source
	row[colStatus] = e.Status
	row[colImported] = strconv.Itoa(e.Imported)
	row[colDuplicates] = strconv.Itoa(e.Duplicates)
	row[colErrors] = strconv.Itoa(e.Errors)
	row[colDetail] = e.Detail
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	e := Entry{
		Timestamp: ts,
		BatchID:   record[colBatchID],
		Source:    record[colSource],
		Status:    record[colStatus],
		Detail:    record[colDetail],
	}
	ints := []struct {
		col int
		dst *int
	}{
		{colImported, &e.Imported},
		{colDuplicates, &e.Duplicates},
		{colErrors, &e.Errors},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(record[f.col]); err != nil {
			return Entry{}, fmt.Errorf("parsing column %d %q: %w", f.col, record[f.col], err)
		}
	}
	if e.AccountID, err = strconv.ParseInt(record[colAccountID], 10, 64); err != nil {
		return Entry{}, fmt.Errorf("parsing account_id %q: %w", record[colAccountID], err)
	}
	if e.MappingID, err = strconv.ParseInt(record[colMappingID], 10, 64); err != nil {
		return Entry{}, fmt.Errorf("parsing mapping_id %q: %w", record[colMappingID], err)
	}
	return e, nil
}

// Append writes entries to <root>/logs/import-log.csv, creating the file and header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <root>/logs/import-log.csv.
// Returns nil if the file does not exist.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
