package inmemorywallet

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/lotterylab/lotteryd/internal/core/ports"
)

// service is a self-contained balance ledger standing in for the token
// contract: faucet-funded accounts plus the pot the entry fees flow into.
type service struct {
	lock     *sync.Mutex
	balances map[string]uint64
	pot      uint64
}

func NewService() ports.WalletService {
	return &service{
		lock:     &sync.Mutex{},
		balances: make(map[string]uint64),
	}
}

func (s *service) Balance(_ context.Context, addr string) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.balances[addr], nil
}

func (s *service) PotBalance(_ context.Context) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pot, nil
}

func (s *service) TransferToPot(_ context.Context, from string, amount uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	balance := s.balances[from]
	if balance < amount {
		return fmt.Errorf(
			"insufficient funds for %s: balance %d, needed %d", from, balance, amount,
		)
	}

	s.balances[from] = balance - amount
	s.pot += amount
	return nil
}

func (s *service) PayoutFromPot(_ context.Context, to string, amount uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.pot < amount {
		return fmt.Errorf("pot underflow: have %d, needed %d", s.pot, amount)
	}
	if s.balances[to] > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s", to)
	}

	s.pot -= amount
	s.balances[to] += amount
	return nil
}

func (s *service) Faucet(_ context.Context, addr string, amount uint64) error {
	if len(addr) <= 0 {
		return fmt.Errorf("missing address")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.balances[addr] > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s", addr)
	}
	s.balances[addr] += amount
	return nil
}

func (s *service) Close() {}
