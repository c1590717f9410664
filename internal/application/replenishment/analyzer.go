// Package replenishment serves replenishment rankings computed from the ledger.
package replenishment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/replenishment"
	"github.com/erp/manufacture/internal/domain/shared"
)

// Analyzer ranks the products of an account by replenishment urgency
type Analyzer struct {
	demand     replenishment.DemandReader
	inProgress replenishment.InProgressReader
	defaults   replenishment.Params
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalyzer creates a new Analyzer. Invalid defaults are replaced by replenishment.DefaultParams.
func NewAnalyzer(
	demand replenishment.DemandReader,
	inProgress replenishment.InProgressReader,
	defaults replenishment.Params,
	logger *zap.Logger,
) *Analyzer {
	if defaults.Validate() != nil {
		defaults = replenishment.DefaultParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		demand:     demand,
		inProgress: inProgress,
		defaults:   defaults,
		logger:     logger.Named("replenishment"),
		now:        time.Now,
	}
}

// Defaults returns the parameters used when a request leaves them out
func (a *Analyzer) Defaults() replenishment.Params {
	return a.defaults
}

// Rank reads demand over the window and returns the ranked signals
func (a *Analyzer) Rank(ctx context.Context, account marketplace.AccountID, params replenishment.Params) ([]replenishment.Signal, error) {
	if err := params.Validate(); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}

	rows, err := a.demand.Demand(ctx, account, params.Since(a.now()))
	if err != nil {
		return nil, fmt.Errorf("read demand: %w", err)
	}
	inProgress, err := a.inProgress.InProgressProducts(ctx, account, params.Channel)
	if err != nil {
		return nil, fmt.Errorf("read in-progress batches: %w", err)
	}

	signals := replenishment.Rank(rows, inProgress, params)
	a.logger.Debug("replenishment ranked",
		zap.String("account", account.String()),
		zap.Int("window_days", params.WindowDays),
		zap.Int("min_coverage_days", params.MinCoverageDays),
		zap.Int("products", len(rows)),
		zap.Int("signals", len(signals)),
	)
	return signals, nil
}

// RankForAccount validates a raw account id and request, then ranks
func (a *Analyzer) RankForAccount(ctx context.Context, rawAccount string, req RankRequest) (*RankResponse, error) {
	account, err := marketplace.NewAccountID(rawAccount)
	if err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}

	params, err := a.params(req)
	if err != nil {
		return nil, err
	}

	signals, err := a.Rank(ctx, account, params)
	if err != nil {
		return nil, err
	}

	return &RankResponse{
		Account:         account.String(),
		WindowDays:      params.WindowDays,
		MinCoverageDays: params.MinCoverageDays,
		Channel:         string(params.Channel),
		GeneratedAt:     a.now().UTC(),
		Total:           len(signals),
		Signals:         signals,
	}, nil
}

func (a *Analyzer) params(req RankRequest) (replenishment.Params, error) {
	params := a.defaults
	if req.WindowDays != 0 {
		params.WindowDays = req.WindowDays
	}
	if req.MinCoverageDays != 0 {
		params.MinCoverageDays = req.MinCoverageDays
	}
	if req.Channel != "" {
		channel, err := manufacture.ParseCompletionChannel(req.Channel)
		if err != nil {
			return params, shared.ErrInvalidInput.Wrap(err)
		}
		params.Channel = channel
	}
	if err := params.Validate(); err != nil {
		return params, shared.ErrInvalidInput.Wrap(err)
	}
	return params, nil
}

// IsInvalidInput reports whether err was caused by a bad request rather than a failure
func IsInvalidInput(err error) bool {
	return errors.Is(err, shared.ErrInvalidInput)
}
