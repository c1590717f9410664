package manufacture

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// StockResetConfig configures FBS stock resets
type StockResetConfig struct {
	// Threshold is the stored quantity above which the FBS amount is reset to zero
	Threshold   int
	// FallbackMin and FallbackMax bound the amount offered while stock is low
	FallbackMin int
	FallbackMax int
	ChunkSize   int
	EffectTTL   time.Duration
}

// DefaultStockResetConfig returns the default reset configuration
func DefaultStockResetConfig() StockResetConfig {
	return StockResetConfig{
		Threshold:   5,
		FallbackMin: 1000,
		FallbackMax: 2000,
		ChunkSize:   1000,
		EffectTTL:   time.Hour,
	}
}

func (c StockResetConfig) withDefaults() StockResetConfig {
	d := DefaultStockResetConfig()
	if c.Threshold < 0 {
		c.Threshold = d.Threshold
	}
	if c.FallbackMin < 0 || c.FallbackMax < c.FallbackMin {
		c.FallbackMin, c.FallbackMax = d.FallbackMin, d.FallbackMax
	}
	if c.ChunkSize <= 0 || c.ChunkSize > d.ChunkSize {
		c.ChunkSize = d.ChunkSize
	}
	if c.EffectTTL <= 0 {
		c.EffectTTL = d.EffectTTL
	}
	return c
}

// ResetReport summarises one reset run
type ResetReport struct {
	Barcodes   int
	Warehouses int
	Pushed     int
	Skipped    int
	Failed     int
}

// StockResetter pushes FBS stock levels derived from the ledger to every seller warehouse.
// Products well stocked at the marketplace are zeroed on FBS, the rest get a fallback amount.
type StockResetter struct {
	stocks     ledger.StockRepository
	warehouses marketplace.WarehouseDirectory
	pusher     marketplace.StockPusher
	dedup      *dedup.Deduplicator
	config     StockResetConfig
	intN       func(n int) int
	logger     *zap.Logger
}

// NewStockResetter creates a new StockResetter
func NewStockResetter(
	stocks ledger.StockRepository,
	warehouses marketplace.WarehouseDirectory,
	pusher marketplace.StockPusher,
	deduplicator *dedup.Deduplicator,
	config StockResetConfig,
	logger *zap.Logger,
) *StockResetter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockResetter{
		stocks:     stocks,
		warehouses: warehouses,
		pusher:     pusher,
		dedup:      deduplicator,
		config:     config.withDefaults(),
		intN:       rand.IntN,
		logger:     logger.Named("stock_resetter"),
	}
}

// Amounts computes the FBS amount of every stock record
func (r *StockResetter) Amounts(stocks []ledger.StockRecord) []marketplace.StockAmount {
	amounts := make([]marketplace.StockAmount, 0, len(stocks))
	for _, s := range stocks {
		amount := 0
		if s.Quantity <= r.config.Threshold {
			amount = r.config.FallbackMin + r.intN(r.config.FallbackMax-r.config.FallbackMin+1)
		}
		amounts = append(amounts, marketplace.StockAmount{SKU: s.Barcode, Amount: amount})
	}
	return amounts
}

// Reset pushes amounts for account, chunk by chunk, to each warehouse. run identifies the
// reset so that a retried job skips chunks that were already accepted. A failed push does
// not stop the other warehouses; all failures are returned together.
func (r *StockResetter) Reset(ctx context.Context, account marketplace.AccountID, run time.Time) (ResetReport, error) {
	var report ResetReport
	log := r.logger.With(zap.String("account", account.String()))

	stocks, err := r.stocks.FindByAccount(ctx, account)
	if err != nil {
		return report, fmt.Errorf("%w: read stocks: %v", marketplace.ErrPersistenceFailure, err)
	}
	report.Barcodes = len(stocks)
	if len(stocks) == 0 {
		return report, nil
	}

	warehouses, err := r.warehouses.ListWarehouses(ctx, account)
	if err != nil {
		return report, fmt.Errorf("list warehouses: %w", err)
	}
	report.Warehouses = len(warehouses)

	amounts := r.Amounts(stocks)
	var errs []error
	for start := 0; start < len(amounts); start += r.config.ChunkSize {
		end := min(start+r.config.ChunkSize, len(amounts))
		chunk := amounts[start:end]

		for _, wh := range warehouses {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			pushed, err := r.push(ctx, account, wh, run, start/r.config.ChunkSize, chunk)
			switch {
			case err != nil:
				report.Failed++
				errs = append(errs, err)
				log.Error("stock reset push failed",
					zap.Int64("warehouse_id", wh.ID),
					zap.Int("chunk", start/r.config.ChunkSize),
					zap.Error(err),
				)
			case pushed:
				report.Pushed++
			default:
				report.Skipped++
			}
		}
	}

	log.Info("fbs stock reset finished",
		zap.Int("barcodes", report.Barcodes),
		zap.Int("warehouses", report.Warehouses),
		zap.Int("pushed", report.Pushed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

func (r *StockResetter) push(
	ctx context.Context,
	account marketplace.AccountID,
	wh marketplace.Warehouse,
	run time.Time,
	chunk int,
	amounts []marketplace.StockAmount,
) (bool, error) {
	lease, err := r.dedup.Guard(dedup.OpResetFBSStock, r.config.EffectTTL,
		account.String(), strconv.FormatInt(wh.ID, 10), run.UTC().Format(time.RFC3339), strconv.Itoa(chunk))
	if err != nil {
		return false, err
	}
	claimed, err := lease.Claim(ctx)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	if err := r.pusher.PushStocks(ctx, account, wh.ID, amounts); err != nil {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			r.logger.Error("failed to release reset claim", zap.Error(relErr))
		}
		return false, fmt.Errorf("push stocks to warehouse %d: %w", wh.ID, err)
	}
	return true, nil
}
