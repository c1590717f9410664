package replenishment

import (
	"time"

	"github.com/erp/manufacture/internal/domain/replenishment"
)

// RankRequest holds the query parameters of a ranking request. Zero values fall back to
// the analyzer's defaults.
type RankRequest struct {
	WindowDays      int    `form:"window" binding:"omitempty,min=1,max=90"`
	MinCoverageDays int    `form:"coverage" binding:"omitempty,min=1,max=365"`
	Channel         string `form:"channel" binding:"omitempty,max=32"`
}

// RankResponse is a ranked list of replenishment signals for one account
type RankResponse struct {
	Account         string                 `json:"account"`
	WindowDays      int                    `json:"window_days"`
	MinCoverageDays int                    `json:"min_coverage_days"`
	Channel         string                 `json:"channel"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Total           int                    `json:"total"`
	Signals         []replenishment.Signal `json:"signals"`
}
