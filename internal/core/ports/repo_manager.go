package ports

import "github.com/lotterylab/lotteryd/internal/core/domain"

type RepoManager interface {
	Rounds() domain.RoundRepository
	Winners() domain.WinnerRepository
	Close()
}
