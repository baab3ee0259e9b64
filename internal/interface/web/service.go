package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lotterylab/lotteryd/internal/core/application"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port uint32
}

func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	return nil
}

type Service interface {
	Start() error
	Stop()
}

type service struct {
	config Config
	appSvc application.Service
	server *http.Server
}

func NewService(
	config Config, appSvc application.Service,
) (Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: NewRouter(appSvc),
	}

	return &service{
		config: config,
		appSvc: appSvc,
		server: server,
	}, nil
}

// NewRouter mounts the v1 API for the given application service.
func NewRouter(appSvc application.Service) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	h := newHandler(appSvc)
	router.Route("/v1", func(r chi.Router) {
		r.Post("/tickets", h.buyTicket)
		r.Get("/tickets", h.listTickets)
		r.Get("/tickets/{owner}/count", h.ticketCount)
		r.Get("/round", h.roundInfo)
		r.Get("/winners", h.listWinners)
		r.Get("/upkeep", h.checkUpkeep)
		r.Post("/upkeep", h.performUpkeep)
		r.Post("/faucet", h.faucet)
		r.Get("/balances/{address}", h.balance)
	})
	return router
}

func (s *service) Start() error {
	if err := s.appSvc.Start(); err != nil {
		return err
	}

	go s.listenToEvents()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server exited")
		}
	}()

	log.Infof("started listening at %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// nolint:all
	s.server.Shutdown(ctx)
	s.appSvc.Stop()
}

func (s *service) listenToEvents() {
	for event := range s.appSvc.GetEventsChannel() {
		switch e := event.(type) {
		case application.TicketPurchased:
			log.WithFields(log.Fields{
				"buyer": e.Buyer, "round": e.RoundSeq, "amount": e.Amount,
			}).Info("ticket purchased")
		case application.RoundAdvancing:
			log.WithFields(log.Fields{
				"round": e.RoundSeq, "request_id": e.RequestId,
			}).Info("round advancing")
		case application.WinnerResolved:
			log.WithFields(log.Fields{
				"round": e.RoundSeq, "winner": e.Winner, "payout": e.Payout,
			}).Info("winner resolved")
		case application.RoundOpened:
			log.WithFields(log.Fields{"round": e.RoundSeq}).Info("new round opened")
		}
	}
}
