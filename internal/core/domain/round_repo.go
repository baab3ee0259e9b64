package domain

import "context"

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round Round) error
	GetRoundWithId(ctx context.Context, id string) (*Round, error)
	GetRoundWithSeq(ctx context.Context, seq uint64) (*Round, error)
	GetLastRound(ctx context.Context) (*Round, error)
	Close()
}

type WinnerRepository interface {
	AddWinner(ctx context.Context, record WinnerRecord) error
	GetAllWinners(ctx context.Context) ([]WinnerRecord, error)
	GetWinnerForRound(ctx context.Context, seq uint64) (*WinnerRecord, error)
	Close()
}
