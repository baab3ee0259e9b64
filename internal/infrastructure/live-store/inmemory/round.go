package inmemorylivestore

import (
	"sync"

	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
)

type currentRoundStore struct {
	lock  *sync.RWMutex
	round *domain.Round
}

func NewCurrentRoundStore() ports.CurrentRoundStore {
	return &currentRoundStore{
		lock: &sync.RWMutex{},
	}
}

func (s *currentRoundStore) Upsert(fn func(r *domain.Round) *domain.Round) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.round = fn(s.round)
}

// Get returns a copy of the live round, detached from the stored one.
func (s *currentRoundStore) Get() *domain.Round {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.round.Clone()
}
