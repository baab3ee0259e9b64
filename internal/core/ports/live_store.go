package ports

import "github.com/lotterylab/lotteryd/internal/core/domain"

type LiveStore interface {
	CurrentRound() CurrentRoundStore
}

type CurrentRoundStore interface {
	Upsert(fn func(r *domain.Round) *domain.Round)
	Get() *domain.Round
}
