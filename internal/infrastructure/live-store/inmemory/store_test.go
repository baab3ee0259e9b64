package inmemorylivestore_test

import (
	"testing"

	"github.com/lotterylab/lotteryd/internal/core/domain"
	inmemorylivestore "github.com/lotterylab/lotteryd/internal/infrastructure/live-store/inmemory"
	"github.com/stretchr/testify/require"
)

func TestCurrentRoundStore(t *testing.T) {
	store := inmemorylivestore.NewLiveStore()

	require.Nil(t, store.CurrentRound().Get())

	round := domain.NewRound(0)
	_, err := round.Open()
	require.NoError(t, err)

	store.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
		return round
	})

	got := store.CurrentRound().Get()
	require.NotNil(t, got)
	require.Equal(t, round.Id, got.Id)

	// the returned round is detached from the stored one
	_, err = got.RegisterTicket(domain.Ticket{Owner: "alice", Amount: 100})
	require.NoError(t, err)
	require.Zero(t, store.CurrentRound().Get().TicketCount())

	// swapping in the mutated copy makes it visible
	store.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
		return got
	})
	require.Equal(t, 1, store.CurrentRound().Get().TicketCount())
}
