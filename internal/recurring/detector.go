package recurring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/finscan/internal/logging"
	"github.com/cleared-dev/finscan/internal/mapper"
	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// AllMerchants asks DetectRecurring to scan every merchant in the store.
const AllMerchants = "all"

// Store is what detection reads and writes.
type Store interface {
	ListMerchants(ctx context.Context) ([]string, error)
	QueryTransactionsByMerchant(ctx context.Context, merchant string) ([]model.Transaction, error)
	GetRecurringExpense(ctx context.Context, merchant string) (model.RecurringExpense, error)
	UpsertRecurringExpense(ctx context.Context, re model.RecurringExpense) (int64, error)
}

// Config tunes detection.
type Config struct {
	MinOccurrences int
	MinConfidence  float64
	Bands          []Band
	// Concurrency bounds parallel merchant scans.
	Concurrency  int
	StoreTimeout time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinOccurrences: 3,
		MinConfidence:  0.6,
		Bands:          DefaultBands,
		Concurrency:    4,
		StoreTimeout:   10 * time.Second,
	}
}

// Action says what an upsert did.
type Action string

const (
	ActionCreated     Action = "created"
	ActionUpdated     Action = "updated"
	ActionDeactivated Action = "deactivated"
)

// Upsert is one write performed by a scan.
type Upsert struct {
	Action   Action
	Expense  model.RecurringExpense
	Analysis Analysis
}

// Detector scans merchants and upserts recurring expenses.
type Detector struct {
	store Store
	cfg   Config
	log   zerolog.Logger
}

func NewDetector(s Store, cfg Config, log zerolog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = def.MinOccurrences
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = def.Bands
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Detector{
		store: s,
		cfg:   cfg,
		log:   logging.Component(log, "recurring"),
	}
}

// DetectRecurring re-scans one merchant, or every merchant when merchant is
// AllMerchants, and returns the upserts performed ordered by merchant.
func (d *Detector) DetectRecurring(ctx context.Context, merchant string) ([]Upsert, error) {
	if merchant != AllMerchants {
		return d.DetectMerchants(ctx, []string{merchant})
	}
	merchants, err := d.listMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing merchants: %w", err)
	}
	return d.DetectMerchants(ctx, merchants)
}

// DetectMerchants scans the given merchants concurrently.
func (d *Detector) DetectMerchants(ctx context.Context, merchants []string) ([]Upsert, error) {
	keys := make(map[string]bool, len(merchants))
	for _, m := range merchants {
		if k := mapper.NormalizeMerchant(m); k != "" {
			keys[k] = true
		}
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	results := make([]*Upsert, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, m := range ordered {
		i, m := i, m
		g.Go(func() error {
			u, err := d.scan(gctx, m)
			if err != nil {
				return fmt.Errorf("scanning %q: %w", m, err)
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Upsert
	for _, u := range results {
		if u != nil {
			out = append(out, *u)
		}
	}
	d.log.Info().Int("merchants", len(ordered)).Int("upserts", len(out)).Msg("recurrence scan finished")
	return out, nil
}

func (d *Detector) scan(ctx context.Context, merchant string) (*Upsert, error) {
	txns, err := d.queryTransactions(ctx, merchant)
	if err != nil {
		return nil, err
	}
	a, ok := Analyze(merchant, txns, d.cfg.MinOccurrences, d.cfg.Bands)

	existing, err := d.getExisting(ctx, merchant)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	log := d.log.With().Str("merchant", merchant).Logger()
	if !ok || a.Confidence < d.cfg.MinConfidence {
		if !exists || !existing.IsActive {
			log.Debug().Int("occurrences", len(txns)).Float64("confidence", a.Confidence).Msg("not recurring")
			return nil, nil
		}
		re := existing
		if ok {
			re = a.Expense()
			re.ID = existing.ID
			if re.CategoryID == 0 {
				re.CategoryID = existing.CategoryID
			}
		}
		re.IsActive = false
		if _, err := d.upsert(ctx, re); err != nil {
			return nil, err
		}
		log.Info().Float64("confidence", re.Confidence).Msg("recurring expense deactivated")
		return &Upsert{Action: ActionDeactivated, Expense: re, Analysis: a}, nil
	}

	re := a.Expense()
	if exists && re.CategoryID == 0 {
		re.CategoryID = existing.CategoryID
	}
	id, err := d.upsert(ctx, re)
	if err != nil {
		return nil, err
	}
	re.ID = id

	action := ActionCreated
	if exists {
		action = ActionUpdated
	}
	log.Info().
		Str("frequency", string(re.FrequencyType)).
		Float64("confidence", re.Confidence).
		Str("action", string(action)).
		Msg("recurring expense upserted")
	return &Upsert{Action: action, Expense: re, Analysis: a}, nil
}

func (d *Detector) listMerchants(ctx context.Context) ([]string, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()
	return d.store.ListMerchants(ctx)
}

func (d *Detector) queryTransactions(ctx context.Context, merchant string) ([]model.Transaction, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()
	return d.store.QueryTransactionsByMerchant(ctx, merchant)
}

func (d *Detector) getExisting(ctx context.Context, merchant string) (model.RecurringExpense, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()
	return d.store.GetRecurringExpense(ctx, merchant)
}

func (d *Detector) upsert(ctx context.Context, re model.RecurringExpense) (int64, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()
	return d.store.UpsertRecurringExpense(ctx, re)
}

func (d *Detector) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.StoreTimeout)
}

