package ports

import "context"

// WalletService is the balance ledger backing the lottery: participant
// accounts plus the pot the entry fees accumulate into. The token
// contract behind it is out of scope, only this boundary is relied upon.
type WalletService interface {
	Balance(ctx context.Context, addr string) (uint64, error)
	PotBalance(ctx context.Context) (uint64, error)
	TransferToPot(ctx context.Context, from string, amount uint64) error
	PayoutFromPot(ctx context.Context, to string, amount uint64) error
	Faucet(ctx context.Context, addr string, amount uint64) error
	Close()
}
