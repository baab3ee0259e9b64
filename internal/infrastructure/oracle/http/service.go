package httporacle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
)

// service reads the latest price from a JSON feed endpoint shaped like
// an aggregator round:
//
//	{"value": "123000000000", "decimals": 8, "updated_at": 1700000000}
type service struct {
	url    string
	client *http.Client
}

func NewService(url string) (ports.PriceOracle, error) {
	if len(url) <= 0 {
		return nil, fmt.Errorf("missing oracle url")
	}

	return &service{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *service) LatestPrice(ctx context.Context) (domain.PriceReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return domain.PriceReading{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.PriceReading{}, err
	}
	// nolint:all
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceReading{}, fmt.Errorf(
			"price feed returned status %d", resp.StatusCode,
		)
	}

	var response struct {
		Value     string `json:"value"`
		Decimals  uint8  `json:"decimals"`
		UpdatedAt int64  `json:"updated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return domain.PriceReading{}, err
	}

	value, ok := new(big.Int).SetString(response.Value, 10)
	if !ok {
		return domain.PriceReading{}, fmt.Errorf(
			"invalid price value %q", response.Value,
		)
	}

	return domain.PriceReading{
		Value:     value,
		Decimals:  response.Decimals,
		UpdatedAt: time.Unix(response.UpdatedAt, 0),
	}, nil
}

func (s *service) Close() {
	s.client.CloseIdleConnections()
}
