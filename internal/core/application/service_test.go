package application_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/lotterylab/lotteryd/internal/core/application"
	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
	inmemorylivestore "github.com/lotterylab/lotteryd/internal/infrastructure/live-store/inmemory"
	inmemorywallet "github.com/lotterylab/lotteryd/internal/infrastructure/wallet/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	assetDecimals = uint8(18)
	minFiatEntry  = decimal.NewFromInt(50)
	roundInterval = 2 * time.Second
	staleAfter    = time.Hour
	pollInterval  = time.Hour
	faucetAmount  = uint64(5_000_000_000_000_000_000)

	// $1230 with 8 decimals
	testPrice = big.NewInt(123_000_000_000)

	// 0.05 units = $61.50, above the $50 floor
	okAmount = uint64(50_000_000_000_000_000)
	// 0.04 units = $49.20, below the floor
	lowAmount = uint64(40_000_000_000_000_000)
)

func TestBuyTicket(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, "alice")

		info, err := env.svc.BuyTicket(context.Background(), "alice", okAmount)
		require.NoError(t, err)
		require.Equal(t, 1, info.TicketCount)
		require.Equal(t, okAmount, info.PotAmount)
		require.Equal(t, "OPEN", info.Stage)

		count, err := env.svc.GetTicketCount(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, 1, count)

		tickets, err := env.svc.GetCurrentTickets(context.Background())
		require.NoError(t, err)
		require.Len(t, tickets, 1)
		require.Equal(t, "alice", tickets[0].Owner)

		balance, err := env.svc.GetBalance(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, faucetAmount-okAmount, balance)

		// repeated purchases stack tickets for the same owner
		_, err = env.svc.BuyTicket(context.Background(), "alice", okAmount)
		require.NoError(t, err)
		count, err = env.svc.GetTicketCount(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("not_enough_value", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, "alice")

		_, err := env.svc.BuyTicket(context.Background(), "alice", lowAmount)
		require.Error(t, err)
		var notEnough application.ErrNotEnoughValue
		require.ErrorAs(t, err, &notEnough)

		// nothing changed
		env.requireNoTickets(t)
		balance, err := env.svc.GetBalance(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, faucetAmount, balance)
	})

	t.Run("oracle_unavailable", func(t *testing.T) {
		fixtures := []struct {
			name    string
			prepare func(o *fakeOracle)
		}{
			{
				name: "feed error",
				prepare: func(o *fakeOracle) {
					o.setErr(fmt.Errorf("connection refused"))
				},
			},
			{
				name: "negative price",
				prepare: func(o *fakeOracle) {
					o.setReading(domain.PriceReading{
						Value:     big.NewInt(-1),
						Decimals:  8,
						UpdatedAt: time.Now(),
					})
				},
			},
			{
				name: "stale price",
				prepare: func(o *fakeOracle) {
					o.setReading(domain.PriceReading{
						Value:     testPrice,
						Decimals:  8,
						UpdatedAt: time.Now().Add(-2 * time.Hour),
					})
				},
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				env := newTestEnv(t)
				env.fund(t, "alice")
				f.prepare(env.oracle)

				_, err := env.svc.BuyTicket(context.Background(), "alice", okAmount)
				require.Error(t, err)
				var unavailable application.ErrOracleUnavailable
				require.ErrorAs(t, err, &unavailable)

				env.requireNoTickets(t)
				balance, err := env.svc.GetBalance(context.Background(), "alice")
				require.NoError(t, err)
				require.Equal(t, faucetAmount, balance)
			})
		}
	})

	t.Run("round_not_open", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, "alice")
		env.buy(t, "alice", okAmount)
		env.backdateRound()

		_, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		_, err = env.svc.BuyTicket(context.Background(), "alice", okAmount)
		require.Error(t, err)
		var notOpen application.ErrRoundNotOpen
		require.ErrorAs(t, err, &notOpen)
	})

	t.Run("invalid_args", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.BuyTicket(context.Background(), "", okAmount)
		require.Error(t, err)
		_, err = env.svc.BuyTicket(context.Background(), "alice", 0)
		require.Error(t, err)
	})
}

func TestUpkeep(t *testing.T) {
	t.Run("not_eligible", func(t *testing.T) {
		t.Run("interval_not_elapsed", func(t *testing.T) {
			env := newTestEnv(t)
			env.fund(t, "alice")
			env.buy(t, "alice", okAmount)

			eligible, err := env.svc.CheckUpkeep(context.Background())
			require.NoError(t, err)
			require.False(t, eligible)

			_, err = env.svc.PerformUpkeep(context.Background())
			var notEligible application.ErrNotEligible
			require.ErrorAs(t, err, &notEligible)
		})

		t.Run("no_tickets", func(t *testing.T) {
			env := newTestEnv(t)
			env.backdateRound()

			eligible, err := env.svc.CheckUpkeep(context.Background())
			require.NoError(t, err)
			require.False(t, eligible)

			_, err = env.svc.PerformUpkeep(context.Background())
			var notEligible application.ErrNotEligible
			require.ErrorAs(t, err, &notEligible)
		})
	})

	t.Run("eligible", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, "alice")
		env.buy(t, "alice", okAmount)
		env.backdateRound()

		eligible, err := env.svc.CheckUpkeep(context.Background())
		require.NoError(t, err)
		require.True(t, eligible)

		// the query mutates nothing, it can be repeated
		eligible, err = env.svc.CheckUpkeep(context.Background())
		require.NoError(t, err)
		require.True(t, eligible)

		requestId, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, requestId)

		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, "CALCULATING", info.Stage)
	})

	t.Run("already_calculating", func(t *testing.T) {
		env := newTestEnv(t)
		env.fund(t, "alice")
		env.buy(t, "alice", okAmount)
		env.backdateRound()

		_, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		_, err = env.svc.PerformUpkeep(context.Background())
		var calculating application.ErrAlreadyCalculating
		require.ErrorAs(t, err, &calculating)

		eligible, err := env.svc.CheckUpkeep(context.Background())
		require.NoError(t, err)
		require.False(t, eligible)
	})
}

func TestFulfillment(t *testing.T) {
	t.Run("resolves_round", func(t *testing.T) {
		env := newTestEnv(t)
		env.start(t)
		env.fund(t, "alice")
		env.fund(t, "bob")
		env.buy(t, "alice", okAmount)
		env.buy(t, "bob", okAmount)
		env.backdateRound()

		requestId, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		// random value 1 picks the second ticket, bob
		env.rng.fulfill(requestId, 1)

		require.Eventually(t, func() bool {
			info, err := env.svc.GetRoundInfo(context.Background())
			return err == nil && info.Seq == 1 && info.Stage == "OPEN"
		}, time.Second, 10*time.Millisecond)

		pot := 2 * okAmount
		balance, err := env.svc.GetBalance(context.Background(), "bob")
		require.NoError(t, err)
		require.Equal(t, faucetAmount-okAmount+pot, balance)

		// the new round starts from scratch
		env.requireNoTickets(t)
		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Zero(t, info.PotAmount)

		winners, err := env.svc.GetWinners(context.Background())
		require.NoError(t, err)
		require.Len(t, winners, 1)
		require.Equal(t, uint64(0), winners[0].RoundSeq)
		require.Equal(t, "bob", winners[0].Winner)
		require.Equal(t, pot, winners[0].PayoutAmount)
		require.Equal(t, uint64(1), winners[0].RandomValue)
	})

	t.Run("four_participants_full_cycle", func(t *testing.T) {
		env := newTestEnv(t)
		env.start(t)

		buyers := []string{"alice", "bob", "carol", "dave"}
		for _, buyer := range buyers {
			env.fund(t, buyer)
			env.buy(t, buyer, okAmount)
		}
		env.backdateRound()

		requestId, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		// random value 4 wraps around four tickets back to index 0
		env.rng.fulfill(requestId, 4)

		require.Eventually(t, func() bool {
			info, err := env.svc.GetRoundInfo(context.Background())
			return err == nil && info.Seq == 1 && info.Stage == "OPEN"
		}, time.Second, 10*time.Millisecond)

		pot := uint64(len(buyers)) * okAmount
		balance, err := env.svc.GetBalance(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, faucetAmount-okAmount+pot, balance)

		for _, loser := range buyers[1:] {
			balance, err := env.svc.GetBalance(context.Background(), loser)
			require.NoError(t, err)
			require.Equal(t, faucetAmount-okAmount, balance)
		}

		winners, err := env.svc.GetWinners(context.Background())
		require.NoError(t, err)
		require.Len(t, winners, 1)
		require.Equal(t, uint64(0), winners[0].RoundSeq)
		require.Equal(t, "alice", winners[0].Winner)
		require.Equal(t, pot, winners[0].PayoutAmount)
		require.Equal(t, uint64(4), winners[0].RandomValue)

		env.requireNoTickets(t)
		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Zero(t, info.PotAmount)
	})

	t.Run("unknown_request", func(t *testing.T) {
		env := newTestEnv(t)
		env.start(t)
		env.fund(t, "alice")
		env.buy(t, "alice", okAmount)
		env.backdateRound()

		requestId, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		// a fulfillment for a request never made is dropped
		env.rng.fulfill("bogus", 42)
		// the one matching the pending request resolves the round
		env.rng.fulfill(requestId, 0)

		require.Eventually(t, func() bool {
			info, err := env.svc.GetRoundInfo(context.Background())
			return err == nil && info.Seq == 1
		}, time.Second, 10*time.Millisecond)

		winners, err := env.svc.GetWinners(context.Background())
		require.NoError(t, err)
		require.Len(t, winners, 1)
	})

	t.Run("payout_failure_keeps_round_calculating", func(t *testing.T) {
		wallet := &flakyWallet{WalletService: inmemorywallet.NewService()}
		env := newTestEnvWithWallet(t, wallet)
		env.start(t)
		env.fund(t, "alice")
		env.buy(t, "alice", okAmount)
		env.backdateRound()

		requestId, err := env.svc.PerformUpkeep(context.Background())
		require.NoError(t, err)

		wallet.setFailPayout(true)
		env.rng.fulfill(requestId, 0)

		// the round must not advance while the payout keeps failing
		time.Sleep(100 * time.Millisecond)
		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, "CALCULATING", info.Stage)
		require.Equal(t, uint64(0), info.Seq)

		winners, err := env.svc.GetWinners(context.Background())
		require.NoError(t, err)
		require.Empty(t, winners)

		// once the transfer succeeds the same fulfillment resolves the round
		wallet.setFailPayout(false)
		env.rng.fulfill(requestId, 0)

		require.Eventually(t, func() bool {
			info, err := env.svc.GetRoundInfo(context.Background())
			return err == nil && info.Seq == 1
		}, time.Second, 10*time.Millisecond)

		winners, err = env.svc.GetWinners(context.Background())
		require.NoError(t, err)
		require.Len(t, winners, 1)
		require.Equal(t, "alice", winners[0].Winner)
	})
}

func TestRestoreRound(t *testing.T) {
	t.Run("fresh_store_opens_round_zero", func(t *testing.T) {
		env := newTestEnv(t)

		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(0), info.Seq)
		require.Equal(t, "OPEN", info.Stage)
	})

	t.Run("resumes_unended_round", func(t *testing.T) {
		repo := newFakeRepoManager()
		round := domain.NewRound(3)
		_, err := round.Open()
		require.NoError(t, err)
		_, err = round.RegisterTicket(domain.Ticket{Owner: "alice", Amount: okAmount})
		require.NoError(t, err)
		_, err = round.StartDraw("pending-request")
		require.NoError(t, err)
		require.NoError(t, repo.Rounds().AddOrUpdateRound(context.Background(), *round))

		env := newTestEnvWithRepo(t, repo)

		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(3), info.Seq)
		require.Equal(t, "CALCULATING", info.Stage)
		require.Equal(t, 1, info.TicketCount)
	})

	t.Run("opens_next_round_after_ended_one", func(t *testing.T) {
		repo := newFakeRepoManager()
		round := domain.NewRound(3)
		_, err := round.Open()
		require.NoError(t, err)
		_, err = round.RegisterTicket(domain.Ticket{Owner: "alice", Amount: okAmount})
		require.NoError(t, err)
		_, err = round.StartDraw("request")
		require.NoError(t, err)
		_, err = round.Finalize(0, okAmount)
		require.NoError(t, err)
		require.NoError(t, repo.Rounds().AddOrUpdateRound(context.Background(), *round))

		env := newTestEnvWithRepo(t, repo)

		info, err := env.svc.GetRoundInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(4), info.Seq)
		require.Equal(t, "OPEN", info.Stage)
		require.Zero(t, info.TicketCount)
	})
}

func TestFaucetRequest(t *testing.T) {
	env := newTestEnv(t)

	amount, err := env.svc.FaucetRequest(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, faucetAmount, amount)

	balance, err := env.svc.GetBalance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, faucetAmount, balance)

	_, err = env.svc.FaucetRequest(context.Background(), "")
	require.Error(t, err)
}

func TestEventsChannel(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice")

	// the opening of round 0 is already on the channel
	event := <-env.svc.GetEventsChannel()
	opened, ok := event.(application.RoundOpened)
	require.True(t, ok)
	require.Equal(t, uint64(0), opened.RoundSeq)

	env.buy(t, "alice", okAmount)
	event = <-env.svc.GetEventsChannel()
	purchased, ok := event.(application.TicketPurchased)
	require.True(t, ok)
	require.Equal(t, "alice", purchased.Buyer)
	require.Equal(t, okAmount, purchased.Amount)

	env.backdateRound()
	requestId, err := env.svc.PerformUpkeep(context.Background())
	require.NoError(t, err)

	event = <-env.svc.GetEventsChannel()
	advancing, ok := event.(application.RoundAdvancing)
	require.True(t, ok)
	require.Equal(t, requestId, advancing.RequestId)
}

/*
	Test environment
*/

type testEnv struct {
	svc    application.Service
	oracle *fakeOracle
	rng    *fakeRng
	wallet ports.WalletService
	repo   *fakeRepoManager
	store  ports.LiveStore
}

func newTestEnv(t *testing.T) *testEnv {
	return newEnv(t, inmemorywallet.NewService(), newFakeRepoManager())
}

func newTestEnvWithWallet(t *testing.T, wallet ports.WalletService) *testEnv {
	return newEnv(t, wallet, newFakeRepoManager())
}

func newTestEnvWithRepo(t *testing.T, repo *fakeRepoManager) *testEnv {
	return newEnv(t, inmemorywallet.NewService(), repo)
}

func newEnv(
	t *testing.T, wallet ports.WalletService, repo *fakeRepoManager,
) *testEnv {
	oracle := &fakeOracle{
		reading: domain.PriceReading{
			Value:     testPrice,
			Decimals:  8,
			UpdatedAt: time.Now(),
		},
	}
	rng := newFakeRng()
	store := inmemorylivestore.NewLiveStore()

	svc, err := application.NewService(
		assetDecimals, minFiatEntry,
		roundInterval, staleAfter, pollInterval,
		faucetAmount,
		oracle, rng, wallet, repo, &fakeScheduler{}, store,
	)
	require.NoError(t, err)

	return &testEnv{
		svc:    svc,
		oracle: oracle,
		rng:    rng,
		wallet: wallet,
		repo:   repo,
		store:  store,
	}
}

func (e *testEnv) start(t *testing.T) {
	require.NoError(t, e.svc.Start())
	t.Cleanup(e.svc.Stop)
}

func (e *testEnv) fund(t *testing.T, addr string) {
	_, err := e.svc.FaucetRequest(context.Background(), addr)
	require.NoError(t, err)
}

func (e *testEnv) buy(t *testing.T, buyer string, amount uint64) {
	_, err := e.svc.BuyTicket(context.Background(), buyer, amount)
	require.NoError(t, err)
}

// backdateRound rewinds the live round's opening time so the interval
// condition holds without sleeping through it.
func (e *testEnv) backdateRound() {
	e.store.CurrentRound().Upsert(func(r *domain.Round) *domain.Round {
		r.StartingTimestamp = time.Now().Add(-time.Minute).Unix()
		return r
	})
}

func (e *testEnv) requireNoTickets(t *testing.T) {
	tickets, err := e.svc.GetCurrentTickets(context.Background())
	require.NoError(t, err)
	require.Empty(t, tickets)
}

/*
	Fakes
*/

type fakeOracle struct {
	mu      sync.Mutex
	reading domain.PriceReading
	err     error
}

func (o *fakeOracle) LatestPrice(_ context.Context) (domain.PriceReading, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.PriceReading{}, o.err
	}
	return o.reading, nil
}

func (o *fakeOracle) Close() {}

func (o *fakeOracle) setReading(reading domain.PriceReading) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reading = reading
}

func (o *fakeOracle) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

type fakeRng struct {
	mu    sync.Mutex
	ch    chan ports.RandomFulfillment
	count int
	once  sync.Once
}

func newFakeRng() *fakeRng {
	return &fakeRng{ch: make(chan ports.RandomFulfillment, 8)}
}

func (r *fakeRng) RequestRandomness(_ context.Context, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return fmt.Sprintf("request-%d", r.count), nil
}

func (r *fakeRng) Fulfillments() <-chan ports.RandomFulfillment {
	return r.ch
}

func (r *fakeRng) Close() {
	r.once.Do(func() { close(r.ch) })
}

func (r *fakeRng) fulfill(requestId string, randomValue uint64) {
	r.ch <- ports.RandomFulfillment{RequestId: requestId, RandomValue: randomValue}
}

type fakeScheduler struct{}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}
func (s *fakeScheduler) ScheduleTaskRecurring(_ time.Duration, _ func()) error {
	return nil
}

type flakyWallet struct {
	ports.WalletService
	mu         sync.Mutex
	failPayout bool
}

func (w *flakyWallet) setFailPayout(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failPayout = fail
}

func (w *flakyWallet) PayoutFromPot(ctx context.Context, to string, amount uint64) error {
	w.mu.Lock()
	fail := w.failPayout
	w.mu.Unlock()
	if fail {
		return fmt.Errorf("transfer rejected")
	}
	return w.WalletService.PayoutFromPot(ctx, to, amount)
}

type fakeRepoManager struct {
	rounds  *fakeRoundRepo
	winners *fakeWinnerRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		rounds:  &fakeRoundRepo{rounds: make(map[string]*domain.Round)},
		winners: &fakeWinnerRepo{},
	}
}

func (m *fakeRepoManager) Rounds() domain.RoundRepository   { return m.rounds }
func (m *fakeRepoManager) Winners() domain.WinnerRepository { return m.winners }
func (m *fakeRepoManager) Close()                           {}

type fakeRoundRepo struct {
	mu     sync.Mutex
	rounds map[string]*domain.Round
}

func (r *fakeRoundRepo) AddOrUpdateRound(_ context.Context, round domain.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds[round.Id] = round.Clone()
	return nil
}

func (r *fakeRoundRepo) GetRoundWithId(_ context.Context, id string) (*domain.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %s not found", id)
	}
	return round.Clone(), nil
}

func (r *fakeRoundRepo) GetRoundWithSeq(_ context.Context, seq uint64) (*domain.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, round := range r.rounds {
		if round.Seq == seq {
			return round.Clone(), nil
		}
	}
	return nil, fmt.Errorf("round %d not found", seq)
}

func (r *fakeRoundRepo) GetLastRound(_ context.Context) (*domain.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *domain.Round
	for _, round := range r.rounds {
		if last == nil || round.Seq > last.Seq {
			last = round
		}
	}
	return last.Clone(), nil
}

func (r *fakeRoundRepo) Close() {}

type fakeWinnerRepo struct {
	mu      sync.Mutex
	records []domain.WinnerRecord
}

func (r *fakeWinnerRepo) AddWinner(_ context.Context, record domain.WinnerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeWinnerRepo) GetAllWinners(_ context.Context) ([]domain.WinnerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.WinnerRecord{}, r.records...), nil
}

func (r *fakeWinnerRepo) GetWinnerForRound(_ context.Context, seq uint64) (*domain.WinnerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.RoundSeq == seq {
			return &record, nil
		}
	}
	return nil, fmt.Errorf("no winner for round %d", seq)
}

func (r *fakeWinnerRepo) Close() {}
