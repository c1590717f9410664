package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// BarcodeTotal is the aggregated quantity of one barcode over a stock poll
type BarcodeTotal struct {
	Barcode  string
	Quantity int
}

// Aggregate groups observations by barcode and sums the nonzero quantities.
// A barcode seen only with zero quantity is still returned, at 0.
// Results keep the order in which barcodes first appear.
func Aggregate(rows []marketplace.StockRow) []BarcodeTotal {
	index := make(map[string]int, len(rows))
	totals := make([]BarcodeTotal, 0, len(rows))
	for _, row := range rows {
		pos, seen := index[row.Barcode]
		if !seen {
			pos = len(totals)
			index[row.Barcode] = pos
			totals = append(totals, BarcodeTotal{Barcode: row.Barcode})
		}
		if row.Quantity != 0 {
			totals[pos].Quantity += row.Quantity
		}
	}
	return totals
}

// ProductTotal is the stock of one resolved product over a stock poll.
// Barcode is the first barcode of the product in poll order.
type ProductTotal struct {
	Product  ledger.ProductIdentity
	Barcode  string
	Quantity int
}

// MergeByProduct sums barcode totals that resolve to one product identity, since
// stock is stored per identity. products[i] is the identity of totals[i]; nil
// marks an unresolved barcode, which is skipped.
func MergeByProduct(totals []BarcodeTotal, products []*ledger.ProductIdentity) []ProductTotal {
	index := make(map[uuid.UUID]int, len(totals))
	merged := make([]ProductTotal, 0, len(totals))
	for i, total := range totals {
		product := products[i]
		if product == nil {
			continue
		}
		pos, seen := index[product.Invariable]
		if !seen {
			pos = len(merged)
			index[product.Invariable] = pos
			merged = append(merged, ProductTotal{Product: *product, Barcode: total.Barcode})
		}
		merged[pos].Quantity += total.Quantity
	}
	return merged
}

// StockIngestor writes absolute stock figures computed from a complete stock poll
type StockIngestor struct {
	resolver ledger.ProductResolver
	stocks   ledger.StockRepository
	dedup    *dedup.Deduplicator
	validate *validator.Validate
	config   Config
	logger   *zap.Logger
}

// NewStockIngestor creates a new StockIngestor
func NewStockIngestor(
	resolver ledger.ProductResolver,
	stocks ledger.StockRepository,
	deduplicator *dedup.Deduplicator,
	config Config,
	logger *zap.Logger,
) *StockIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockIngestor{
		resolver: resolver,
		stocks:   stocks,
		dedup:    deduplicator,
		validate: validator.New(),
		config:   config.withDefaults(),
		logger:   logger.Named("stock_ingestor"),
	}
}

// IngestSnapshot aggregates every observation of one poll and upserts one StockRecord
// per resolved product; barcodes sharing a product are summed. run identifies the poll
// so that a duplicate run over the same window writes nothing twice, while a later run
// always rewrites the figures.
func (i *StockIngestor) IngestSnapshot(ctx context.Context, account marketplace.AccountID, run marketplace.Cursor, rows []marketplace.StockRow) (Stats, error) {
	stats := Stats{Received: len(rows)}

	valid := make([]marketplace.StockRow, 0, len(rows))
	for _, row := range rows {
		if err := i.validate.Struct(row); err != nil {
			i.logger.Warn("dropping invalid stock row",
				zap.String("account", account.String()),
				zap.String("barcode", row.Barcode),
				zap.Error(err),
			)
			stats.record(OutcomeInvalid)
			continue
		}
		valid = append(valid, row)
	}

	totals := Aggregate(valid)
	var mu sync.Mutex
	products, err := i.resolveAll(ctx, account, totals, func(o Outcome) {
		mu.Lock()
		stats.record(o)
		mu.Unlock()
	})
	if err != nil {
		return stats, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Concurrency)

	for _, total := range MergeByProduct(totals, products) {
		g.Go(func() error {
			outcome, err := i.upsertOne(gctx, account, run, total)
			mu.Lock()
			stats.record(outcome)
			mu.Unlock()
			if err != nil && !marketplace.IsPermanent(err) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	return stats, err
}

// resolveAll resolves the barcode of every total. Unresolved barcodes stay nil and
// are reported through record; a lookup failure aborts the snapshot.
func (i *StockIngestor) resolveAll(ctx context.Context, account marketplace.AccountID, totals []BarcodeTotal, record func(Outcome)) ([]*ledger.ProductIdentity, error) {
	products := make([]*ledger.ProductIdentity, len(totals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Concurrency)
	for idx, total := range totals {
		g.Go(func() error {
			product, err := i.resolver.Resolve(gctx, account, total.Barcode)
			if errors.Is(err, ledger.ErrProductNotFound) {
				i.logger.Warn("barcode not resolved, stock dropped",
					zap.String("account", account.String()),
					zap.String("barcode", total.Barcode),
					zap.Int("quantity", total.Quantity),
				)
				record(OutcomeUnresolved)
				return nil
			}
			if err != nil {
				record(OutcomeFailed)
				return fmt.Errorf("resolve barcode %s: %w", total.Barcode, err)
			}
			products[idx] = &product
			return nil
		})
	}
	return products, g.Wait()
}

func (i *StockIngestor) upsertOne(ctx context.Context, account marketplace.AccountID, run marketplace.Cursor, total ProductTotal) (Outcome, error) {
	log := i.logger.With(
		zap.String("account", account.String()),
		zap.String("invariable", total.Product.Invariable.String()),
	)

	record, err := ledger.NewStockRecord(account, total.Barcode, total.Product, total.Quantity)
	if err != nil {
		return OutcomeInvalid, fmt.Errorf("%w: %v", marketplace.ErrValidationFailure, err)
	}

	lease, err := i.dedup.Guard(dedup.OpIngestStock, i.config.StockTTL,
		account.String(), total.Product.Invariable.String(), run.String(), strconv.Itoa(total.Quantity))
	if err != nil {
		return OutcomeFailed, err
	}
	claimed, err := lease.Claim(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}

	if err := i.stocks.Upsert(ctx, record); err != nil {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Error("failed to release dedup claim", zap.Error(relErr))
		}
		return OutcomeFailed, fmt.Errorf("%w: %v", marketplace.ErrPersistenceFailure, err)
	}

	log.Debug("stock updated", zap.String("barcode", total.Barcode), zap.Int("quantity", total.Quantity))
	return OutcomeIngested, nil
}
