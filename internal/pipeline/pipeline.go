// Package pipeline runs a CSV batch through mapping, deduplication and
// persistence, producing a complete per-row accounting.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/finscan/internal/dedup"
	"github.com/cleared-dev/finscan/internal/importer"
	"github.com/cleared-dev/finscan/internal/logging"
	"github.com/cleared-dev/finscan/internal/mapper"
	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// State is the batch lifecycle position.
type State string

const (
	StateReading       State = "reading"
	StateMapping       State = "mapping"
	StateDeduplicating State = "deduplicating"
	StatePersisting    State = "persisting"
	StateCompleted     State = "completed"
	StateAborted       State = "aborted"
)

// Outcome is the fate of one input row.
type Outcome string

const (
	OutcomePending   Outcome = "pending" // never reached because the batch aborted
	OutcomeImported  Outcome = "imported"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// Store is what the pipeline needs from persistence.
type Store interface {
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	GetCsvMapping(ctx context.Context, id int64) (model.CsvMapping, error)
	InsertTransaction(ctx context.Context, t model.Transaction) (int64, error)
}

// Categorizer optionally assigns a category id to a record; 0 means none.
type Categorizer interface {
	Categorize(ctx context.Context, rec model.CanonicalRecord) (int64, error)
}

// RowResult records what happened to one data row.
type RowResult struct {
	Row           int
	Outcome       Outcome
	TransactionID int64
	Err           *mapper.RowError
}

// BatchResult is the accounting of one import.
type BatchResult struct {
	BatchID    string
	AccountID  int64
	MappingID  int64
	State      State
	Imported   int
	Duplicates int
	Errors     []mapper.RowError
	Rows       []RowResult
	// Merchants lists the normalized merchants of newly imported rows.
	Merchants []string
}

// Config tunes the pipeline.
type Config struct {
	// StoreTimeout bounds every individual store call. Zero disables it.
	StoreTimeout time.Duration
}

// Pipeline imports CSV batches.
type Pipeline struct {
	store       Store
	dedup       *dedup.Deduplicator
	categorizer Categorizer
	cfg         Config
	log         zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCategorizer enables category assignment before persistence.
func WithCategorizer(c Categorizer) Option {
	return func(p *Pipeline) { p.categorizer = c }
}

func New(s Store, cfg Config, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store: s,
		dedup: dedup.New(s),
		cfg:   cfg,
		log:   logging.Component(log, "pipeline"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Import loads the stored mapping and imports data into the account.
func (p *Pipeline) Import(ctx context.Context, accountID, mappingID int64, data []byte) (BatchResult, error) {
	m, err := bounded(ctx, p.cfg.StoreTimeout, func(ctx context.Context) (model.CsvMapping, error) {
		return p.store.GetCsvMapping(ctx, mappingID)
	})
	if err != nil {
		res := p.newBatch(accountID, mappingID)
		if store.IsInfrastructure(err) {
			return res, &InfrastructureError{Err: err}
		}
		return res, fmt.Errorf("loading mapping %d: %w", mappingID, err)
	}
	return p.ImportMapping(ctx, accountID, m, bytes.NewReader(data))
}

// ImportMapping imports r under an explicit mapping, which need not be stored.
func (p *Pipeline) ImportMapping(ctx context.Context, accountID int64, m model.CsvMapping, r io.Reader) (BatchResult, error) {
	res := p.newBatch(accountID, m.ID)
	log := p.log.With().
		Str("batch_id", res.BatchID).
		Int64("account_id", accountID).
		Int64("mapping_id", m.ID).
		Logger()

	cm, err := mapper.New(m)
	if err != nil {
		var ve model.ValidationErrors
		errors.As(err, &ve)
		return res, &ConfigurationError{MappingID: m.ID, Problems: ve}
	}

	if _, err := bounded(ctx, p.cfg.StoreTimeout, func(ctx context.Context) (model.Account, error) {
		return p.store.GetAccount(ctx, accountID)
	}); err != nil {
		if store.IsInfrastructure(err) {
			return res, &InfrastructureError{Err: err}
		}
		return res, fmt.Errorf("account %d: %w", accountID, err)
	}

	tbl, err := importer.ReadRows(ctx, r, m.SkipRows)
	if err != nil {
		if ctx.Err() != nil {
			return res, &InfrastructureError{Err: ctx.Err()}
		}
		return res, fmt.Errorf("reading csv: %w", err)
	}
	if err := cm.CheckHeaders(tbl.Headers); err != nil {
		var ve model.ValidationErrors
		errors.As(err, &ve)
		return res, &ConfigurationError{MappingID: m.ID, Problems: ve}
	}

	res.State = StateMapping
	res.Rows = make([]RowResult, len(tbl.Rows))
	var mapped []int
	records := make([]model.CanonicalRecord, len(tbl.Rows))
	for i, row := range tbl.Rows {
		res.Rows[i] = RowResult{Row: i + 1, Outcome: OutcomePending}
		rec, err := cm.Map(i+1, row)
		if err != nil {
			var re *mapper.RowError
			if !errors.As(err, &re) {
				re = &mapper.RowError{Row: i + 1, Reason: mapper.ReasonInvalidAmount, Detail: err.Error()}
			}
			res.Rows[i].Outcome = OutcomeError
			res.Rows[i].Err = re
			res.Errors = append(res.Errors, *re)
			log.Debug().Int("row", re.Row).Str("reason", string(re.Reason)).Str("detail", re.Detail).Msg("row rejected")
			continue
		}
		records[i] = rec
		mapped = append(mapped, i)
	}

	res.State = StateDeduplicating
	txns := make([]model.Transaction, len(tbl.Rows))
	for _, i := range mapped {
		txns[i] = model.NewTransaction(accountID, records[i], dedup.Fingerprint(accountID, records[i]))
	}

	res.State = StatePersisting
	merchants := make(map[string]bool)
	for _, i := range mapped {
		if err := ctx.Err(); err != nil {
			return p.abort(res, log, err)
		}

		txn := txns[i]
		if p.categorizer != nil {
			id, err := bounded(ctx, p.cfg.StoreTimeout, func(ctx context.Context) (int64, error) {
				return p.categorizer.Categorize(ctx, records[i])
			})
			if err != nil {
				if store.IsInfrastructure(err) {
					return p.abort(res, log, err)
				}
				log.Warn().Err(err).Int("row", i+1).Msg("categorize failed")
			}
			txn.CategoryID = id
		}

		rsv, err := bounded(ctx, p.cfg.StoreTimeout, func(ctx context.Context) (dedup.Reservation, error) {
			return p.dedup.CheckAndReserve(ctx, txn)
		})
		if err != nil {
			return p.abort(res, log, err)
		}

		switch rsv.Outcome {
		case dedup.Accepted:
			res.Imported++
			res.Rows[i].Outcome = OutcomeImported
			res.Rows[i].TransactionID = rsv.ID
			if txn.Merchant != "" {
				merchants[txn.Merchant] = true
			}
		case dedup.Duplicate:
			res.Duplicates++
			res.Rows[i].Outcome = OutcomeDuplicate
		}
	}

	res.State = StateCompleted
	res.Merchants = sortedKeys(merchants)
	log.Info().
		Int("rows", len(tbl.Rows)).
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("errors", len(res.Errors)).
		Msg("import completed")
	return res, nil
}

func (p *Pipeline) abort(res BatchResult, log zerolog.Logger, err error) (BatchResult, error) {
	res.State = StateAborted
	log.Error().Err(err).Int("committed", res.Imported).Msg("import aborted")
	return res, &InfrastructureError{Committed: res.Imported, Err: err}
}

func (p *Pipeline) newBatch(accountID, mappingID int64) BatchResult {
	return BatchResult{
		BatchID:   uuid.NewString(),
		AccountID: accountID,
		MappingID: mappingID,
		State:     StateReading,
	}
}

// bounded runs fn under a per-call timeout.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
