package staticoracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
)

// service serves a fixed price, the local-network stand-in for a real
// aggregator feed. The reading is stamped at call time so it is never
// stale.
type service struct {
	lock     *sync.RWMutex
	value    *big.Int
	decimals uint8
}

func NewService(value string, decimals uint8) (ports.PriceOracle, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid static price %q", value)
	}

	return &service{
		lock:     &sync.RWMutex{},
		value:    parsed,
		decimals: decimals,
	}, nil
}

func (s *service) LatestPrice(_ context.Context) (domain.PriceReading, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return domain.PriceReading{
		Value:     new(big.Int).Set(s.value),
		Decimals:  s.decimals,
		UpdatedAt: time.Now(),
	}, nil
}

func (s *service) Close() {}
