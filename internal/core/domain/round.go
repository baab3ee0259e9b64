package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	UndefinedStage RoundStage = iota
	OpenStage
	CalculatingStage
)

type RoundStage int

func (s RoundStage) String() string {
	switch s {
	case OpenStage:
		return "OPEN"
	case CalculatingStage:
		return "CALCULATING"
	default:
		return "UNDEFINED"
	}
}

type Ticket struct {
	Owner  string
	Amount uint64
}

type Round struct {
	Id                string
	Seq               uint64
	StartingTimestamp int64
	EndingTimestamp   int64
	Stage             RoundStage
	Ended             bool
	Tickets           []Ticket
	TicketsByOwner    map[string]int
	PotAmount         uint64
	RequestId         string
	Winner            string
	PayoutAmount      uint64
	RandomValue       uint64
	Version           uint
	changes           []RoundEvent
}

func NewRound(seq uint64) *Round {
	return &Round{
		Id:             uuid.New().String(),
		Seq:            seq,
		Tickets:        make([]Ticket, 0),
		TicketsByOwner: make(map[string]int),
		changes:        make([]RoundEvent, 0),
	}
}

func NewRoundFromEvents(events []RoundEvent) *Round {
	r := &Round{}

	for _, event := range events {
		r.On(event, true)
	}

	r.changes = append([]RoundEvent{}, events...)

	return r
}

func (r *Round) Events() []RoundEvent {
	return r.changes
}

// Clone returns an independent copy of the aggregate, safe to mutate
// while other readers hold the original.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Tickets = append([]Ticket{}, r.Tickets...)
	clone.TicketsByOwner = make(map[string]int, len(r.TicketsByOwner))
	for owner, count := range r.TicketsByOwner {
		clone.TicketsByOwner[owner] = count
	}
	clone.changes = append([]RoundEvent{}, r.changes...)
	return &clone
}

func (r *Round) On(event RoundEvent, replayed bool) {
	switch e := event.(type) {
	case RoundStarted:
		r.Stage = OpenStage
		r.Id = e.Id
		r.Seq = e.Seq
		r.StartingTimestamp = e.Timestamp
	case TicketRegistered:
		if r.TicketsByOwner == nil {
			r.TicketsByOwner = make(map[string]int)
		}
		r.Tickets = append(r.Tickets, e.Ticket)
		r.TicketsByOwner[e.Ticket.Owner]++
		r.PotAmount += e.Ticket.Amount
	case DrawStarted:
		r.Stage = CalculatingStage
		r.RequestId = e.RequestId
	case RoundFinalized:
		r.Ended = true
		r.Winner = e.Winner
		r.PayoutAmount = e.Payout
		r.RandomValue = e.RandomValue
		r.RequestId = ""
		r.EndingTimestamp = e.Timestamp
	}

	if replayed {
		r.Version++
	}
}

func (r *Round) Open() ([]RoundEvent, error) {
	if r.Stage != UndefinedStage {
		return nil, fmt.Errorf("not in a valid stage to open the round")
	}

	event := RoundStarted{
		Id:        r.Id,
		Seq:       r.Seq,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) RegisterTicket(ticket Ticket) ([]RoundEvent, error) {
	if !r.IsOpen() {
		return nil, fmt.Errorf("not in a valid stage to register tickets")
	}
	if len(ticket.Owner) <= 0 {
		return nil, fmt.Errorf("missing ticket owner")
	}
	if ticket.Amount <= 0 {
		return nil, fmt.Errorf("missing ticket amount")
	}

	event := TicketRegistered{
		Id:     r.Id,
		Ticket: ticket,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) StartDraw(requestId string) ([]RoundEvent, error) {
	if len(requestId) <= 0 {
		return nil, fmt.Errorf("missing randomness request id")
	}
	if !r.IsOpen() {
		return nil, fmt.Errorf("not in a valid stage to start the draw")
	}
	if len(r.Tickets) <= 0 {
		return nil, fmt.Errorf("no tickets registered")
	}

	event := DrawStarted{
		Id:        r.Id,
		RequestId: requestId,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Finalize(randomValue, payout uint64) ([]RoundEvent, error) {
	if !r.IsCalculating() {
		return nil, fmt.Errorf("not in a valid stage to finalize the round")
	}

	winner, err := r.WinnerTicket(randomValue)
	if err != nil {
		return nil, err
	}

	event := RoundFinalized{
		Id:          r.Id,
		Winner:      winner.Owner,
		Payout:      payout,
		RandomValue: randomValue,
		Timestamp:   time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

// WinnerTicket maps a random value onto the ordered ticket sequence.
// The modulo selection rule is part of the public contract and must not
// change.
func (r *Round) WinnerTicket(randomValue uint64) (Ticket, error) {
	if len(r.Tickets) <= 0 {
		return Ticket{}, fmt.Errorf("no tickets registered")
	}
	return r.Tickets[randomValue%uint64(len(r.Tickets))], nil
}

func (r *Round) IsOpen() bool {
	return !r.Ended && r.Stage == OpenStage
}

func (r *Round) IsCalculating() bool {
	return !r.Ended && r.Stage == CalculatingStage
}

func (r *Round) IsEnded() bool {
	return r.Ended
}

func (r *Round) TicketCount() int {
	return len(r.Tickets)
}

func (r *Round) TicketCountForOwner(owner string) int {
	return r.TicketsByOwner[owner]
}

func (r *Round) raise(event RoundEvent) {
	if r.changes == nil {
		r.changes = make([]RoundEvent, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event, false)
}
