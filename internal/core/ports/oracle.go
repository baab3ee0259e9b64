package ports

import (
	"context"

	"github.com/lotterylab/lotteryd/internal/core/domain"
)

// PriceOracle exposes the latest reading of the native-asset fiat price
// feed. Staleness and sign checks are applied by the caller.
type PriceOracle interface {
	LatestPrice(ctx context.Context) (domain.PriceReading, error)
	Close()
}
