package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/lotterylab/lotteryd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const eventsChBuffer = 128

type RoundInfo struct {
	Id          string
	Seq         uint64
	Stage       string
	OpenedAt    int64
	TicketCount int
	PotAmount   uint64
}

type Service interface {
	Start() error
	Stop()

	BuyTicket(ctx context.Context, buyer string, amount uint64) (*RoundInfo, error)
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (string, error)

	GetRoundInfo(ctx context.Context) (*RoundInfo, error)
	GetCurrentTickets(ctx context.Context) ([]domain.Ticket, error)
	GetTicketCount(ctx context.Context, owner string) (int, error)
	GetWinners(ctx context.Context) ([]domain.WinnerRecord, error)
	GetBalance(ctx context.Context, addr string) (uint64, error)
	FaucetRequest(ctx context.Context, addr string) (uint64, error)

	GetEventsChannel() <-chan Event
}

type lotteryService struct {
	// services
	oracle      ports.PriceOracle
	rng         ports.RandomnessSource
	wallet      ports.WalletService
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService
	liveStore   ports.LiveStore

	// config
	assetDecimals    uint8
	minFiatEntry     decimal.Decimal
	roundInterval    time.Duration
	oracleStaleAfter time.Duration
	pollInterval     time.Duration
	faucetAmount     uint64

	// mu serializes the three mutating entry points: purchase, advance
	// and fulfillment. The eligibility query takes no lock.
	mu sync.Mutex

	eventsCh chan Event
	stopCh   chan struct{}
}

func NewService(
	assetDecimals uint8,
	minFiatEntry decimal.Decimal,
	roundInterval, oracleStaleAfter, pollInterval time.Duration,
	faucetAmount uint64,
	oracleSvc ports.PriceOracle,
	rngSvc ports.RandomnessSource,
	walletSvc ports.WalletService,
	repoManager ports.RepoManager,
	schedulerSvc ports.SchedulerService,
	liveStore ports.LiveStore,
) (Service, error) {
	if roundInterval < 2*time.Second {
		return nil, fmt.Errorf("round interval must be at least 2 seconds")
	}
	if minFiatEntry.IsNegative() {
		return nil, fmt.Errorf("minimum fiat entry must not be negative")
	}

	svc := &lotteryService{
		oracle:           oracleSvc,
		rng:              rngSvc,
		wallet:           walletSvc,
		repoManager:      repoManager,
		scheduler:        schedulerSvc,
		liveStore:        liveStore,
		assetDecimals:    assetDecimals,
		minFiatEntry:     minFiatEntry,
		roundInterval:    roundInterval,
		oracleStaleAfter: oracleStaleAfter,
		pollInterval:     pollInterval,
		faucetAmount:     faucetAmount,
		eventsCh:         make(chan Event, eventsChBuffer),
		stopCh:           make(chan struct{}),
	}

	if err := svc.restoreRound(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to restore round: %w", err)
	}

	return svc, nil
}

func (s *lotteryService) Start() error {
	s.scheduler.Start()
	if err := s.scheduler.ScheduleTaskRecurring(s.pollInterval, s.upkeepTask); err != nil {
		return fmt.Errorf("failed to schedule upkeep task: %w", err)
	}

	go s.listenToFulfillments()

	log.Debugf("started lottery service, polling every %s", s.pollInterval)
	return nil
}

func (s *lotteryService) Stop() {
	close(s.stopCh)
	s.scheduler.Stop()
	s.rng.Close()
	s.oracle.Close()
	s.wallet.Close()
	s.repoManager.Close()
	log.Debug("stopped lottery service")
}

func (s *lotteryService) BuyTicket(
	ctx context.Context, buyer string, amount uint64,
) (*RoundInfo, error) {
	if len(buyer) <= 0 {
		return nil, fmt.Errorf("missing buyer")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("missing amount")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.liveStore.CurrentRound().Get()
	if !round.IsOpen() {
		return nil, ErrRoundNotOpen{}
	}

	reading, err := s.latestPrice(ctx)
	if err != nil {
		return nil, err
	}

	fiatValue := domain.FiatValue(amount, s.assetDecimals, reading)
	minEntry := s.minFiatEntry.Shift(int32(reading.Decimals)).BigInt()
	if fiatValue.Cmp(minEntry) < 0 {
		return nil, ErrNotEnoughValue{FiatValue: fiatValue, MinEntry: minEntry}
	}

	if err := s.wallet.TransferToPot(ctx, buyer, amount); err != nil {
		return nil, fmt.Errorf("failed to collect entry fee: %w", err)
	}

	if _, err := round.RegisterTicket(domain.Ticket{Owner: buyer, Amount: amount}); err != nil {
		return nil, err
	}

	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		log.WithError(err).Warn("failed to persist round after ticket purchase")
	}
	s.liveStore.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
		return round
	})

	s.publishEvent(TicketPurchased{Buyer: buyer, RoundSeq: round.Seq, Amount: amount})

	log.Debugf("registered ticket for %s in round %d", buyer, round.Seq)
	return roundInfo(round), nil
}

// CheckUpkeep is the pure eligibility query polled by the automation
// trigger. It mutates nothing and may be called any number of times.
func (s *lotteryService) CheckUpkeep(ctx context.Context) (bool, error) {
	round := s.liveStore.CurrentRound().Get()
	eligible, _, err := s.eligibility(ctx, round)
	return eligible, err
}

func (s *lotteryService) PerformUpkeep(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.liveStore.CurrentRound().Get()
	if round.IsCalculating() {
		return "", ErrAlreadyCalculating{}
	}

	// Never trust the caller's check, re-derive eligibility now.
	eligible, reason, err := s.eligibility(ctx, round)
	if err != nil {
		return "", err
	}
	if !eligible {
		return "", ErrNotEligible{Reason: reason}
	}

	requestId, err := s.rng.RequestRandomness(ctx, round.Id)
	if err != nil {
		return "", fmt.Errorf("failed to request randomness: %w", err)
	}

	if _, err := round.StartDraw(requestId); err != nil {
		return "", err
	}

	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		log.WithError(err).Warn("failed to persist round after starting draw")
	}
	s.liveStore.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
		return round
	})

	s.publishEvent(RoundAdvancing{RoundSeq: round.Seq, RequestId: requestId})

	log.Infof("round %d advancing, randomness request %s", round.Seq, requestId)
	return requestId, nil
}

func (s *lotteryService) GetRoundInfo(_ context.Context) (*RoundInfo, error) {
	return roundInfo(s.liveStore.CurrentRound().Get()), nil
}

func (s *lotteryService) GetCurrentTickets(_ context.Context) ([]domain.Ticket, error) {
	round := s.liveStore.CurrentRound().Get()
	return append([]domain.Ticket{}, round.Tickets...), nil
}

func (s *lotteryService) GetTicketCount(_ context.Context, owner string) (int, error) {
	round := s.liveStore.CurrentRound().Get()
	return round.TicketCountForOwner(owner), nil
}

func (s *lotteryService) GetWinners(ctx context.Context) ([]domain.WinnerRecord, error) {
	return s.repoManager.Winners().GetAllWinners(ctx)
}

func (s *lotteryService) GetBalance(ctx context.Context, addr string) (uint64, error) {
	return s.wallet.Balance(ctx, addr)
}

func (s *lotteryService) FaucetRequest(ctx context.Context, addr string) (uint64, error) {
	if err := s.wallet.Faucet(ctx, addr, s.faucetAmount); err != nil {
		return 0, err
	}
	return s.faucetAmount, nil
}

func (s *lotteryService) GetEventsChannel() <-chan Event {
	return s.eventsCh
}

func (s *lotteryService) restoreRound(ctx context.Context) error {
	lastRound, err := s.repoManager.Rounds().GetLastRound(ctx)
	if err != nil {
		return err
	}

	if lastRound != nil && !lastRound.IsEnded() {
		// Resume the interrupted round, including a pending draw.
		s.liveStore.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
			return lastRound
		})
		log.Infof(
			"resumed round %d in stage %s", lastRound.Seq, lastRound.Stage,
		)
		return nil
	}

	nextSeq := uint64(0)
	if lastRound != nil {
		nextSeq = lastRound.Seq + 1
	}

	return s.openNewRound(ctx, nextSeq)
}

func (s *lotteryService) openNewRound(ctx context.Context, seq uint64) error {
	round := domain.NewRound(seq)
	if _, err := round.Open(); err != nil {
		return err
	}
	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		return err
	}
	s.liveStore.CurrentRound().Upsert(func(_ *domain.Round) *domain.Round {
		return round
	})

	s.publishEvent(RoundOpened{RoundSeq: round.Seq})

	log.Infof("round %d opened", round.Seq)
	return nil
}

func (s *lotteryService) listenToFulfillments() {
	for {
		select {
		case <-s.stopCh:
			return
		case fulfillment, ok := <-s.rng.Fulfillments():
			if !ok {
				return
			}
			if err := s.fulfill(context.Background(), fulfillment); err != nil {
				log.WithError(err).Warnf(
					"failed to handle fulfillment of request %s",
					fulfillment.RequestId,
				)
			}
		}
	}
}

func (s *lotteryService) fulfill(
	ctx context.Context, fulfillment ports.RandomFulfillment,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.liveStore.CurrentRound().Get()
	if !round.IsCalculating() || round.RequestId != fulfillment.RequestId {
		return ErrUnknownRequest{RequestId: fulfillment.RequestId}
	}

	payout, err := s.wallet.PotBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pot balance: %w", err)
	}

	winnerTicket, err := round.WinnerTicket(fulfillment.RandomValue)
	if err != nil {
		return err
	}

	// The payout precedes any bookkeeping. If the transfer fails the
	// round stays CALCULATING with its request id intact, so the same
	// fulfillment can be retried and the pre-reset ticket list stays
	// available for diagnosis.
	if err := s.wallet.PayoutFromPot(ctx, winnerTicket.Owner, payout); err != nil {
		return ErrPayoutFailed{Winner: winnerTicket.Owner, Err: err}
	}

	if _, err := round.Finalize(fulfillment.RandomValue, payout); err != nil {
		return err
	}

	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		log.WithError(err).Warn("failed to persist finalized round")
	}
	if err := s.repoManager.Winners().AddWinner(ctx, domain.WinnerRecord{
		RoundSeq:     round.Seq,
		Winner:       round.Winner,
		PayoutAmount: round.PayoutAmount,
		RandomValue:  round.RandomValue,
		ResolvedAt:   round.EndingTimestamp,
	}); err != nil {
		log.WithError(err).Warn("failed to persist winner record")
	}

	s.publishEvent(WinnerResolved{
		RoundSeq:    round.Seq,
		Winner:      round.Winner,
		Payout:      round.PayoutAmount,
		RandomValue: round.RandomValue,
	})

	log.Infof(
		"round %d resolved, winner %s paid %d", round.Seq, round.Winner, payout,
	)

	return s.openNewRound(ctx, round.Seq+1)
}

// eligibility evaluates the four advancement conditions in order: round
// open, interval elapsed, at least one ticket, non-empty pot. All four
// are required.
func (s *lotteryService) eligibility(
	ctx context.Context, round *domain.Round,
) (bool, string, error) {
	if !round.IsOpen() {
		return false, "round is not open", nil
	}
	if elapsed := time.Now().Unix() - round.StartingTimestamp; elapsed < int64(s.roundInterval.Seconds()) {
		return false, "round interval has not elapsed", nil
	}
	if round.TicketCount() < 1 {
		return false, "no tickets registered", nil
	}

	potBalance, err := s.wallet.PotBalance(ctx)
	if err != nil {
		return false, "", fmt.Errorf("failed to get pot balance: %w", err)
	}
	if potBalance <= 0 {
		return false, "empty pot", nil
	}

	return true, "", nil
}

func (s *lotteryService) latestPrice(ctx context.Context) (domain.PriceReading, error) {
	reading, err := s.oracle.LatestPrice(ctx)
	if err != nil {
		return domain.PriceReading{}, ErrOracleUnavailable{Err: err}
	}
	if reading.IsNegative() {
		return domain.PriceReading{}, ErrOracleUnavailable{
			Err: fmt.Errorf("negative price reading"),
		}
	}
	if reading.IsStale(s.oracleStaleAfter, time.Now()) {
		return domain.PriceReading{}, ErrOracleUnavailable{
			Err: fmt.Errorf("price reading older than %s", s.oracleStaleAfter),
		}
	}
	return reading, nil
}

func (s *lotteryService) upkeepTask() {
	ctx := context.Background()

	eligible, err := s.CheckUpkeep(ctx)
	if err != nil {
		log.WithError(err).Warn("upkeep check failed")
		return
	}
	if !eligible {
		round := s.liveStore.CurrentRound().Get()
		if round.IsCalculating() {
			log.Debugf(
				"round %d still waiting for randomness request %s",
				round.Seq, round.RequestId,
			)
		}
		return
	}

	if _, err := s.PerformUpkeep(ctx); err != nil {
		log.WithError(err).Warn("failed to perform upkeep")
	}
}

func (s *lotteryService) publishEvent(event Event) {
	select {
	case s.eventsCh <- event:
	default:
		log.Warnf("events channel full, dropping %s", event.Type())
	}
}

func roundInfo(round *domain.Round) *RoundInfo {
	return &RoundInfo{
		Id:          round.Id,
		Seq:         round.Seq,
		Stage:       round.Stage.String(),
		OpenedAt:    round.StartingTimestamp,
		TicketCount: round.TicketCount(),
		PotAmount:   round.PotAmount,
	}
}
