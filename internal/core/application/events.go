package application

// Event is an observation emitted by the service for external consumers.
// It carries no internal state, only what already happened.
type Event interface {
	Type() string
}

type TicketPurchased struct {
	Buyer    string
	RoundSeq uint64
	Amount   uint64
}

func (e TicketPurchased) Type() string { return "ticket_purchased" }

type RoundAdvancing struct {
	RoundSeq  uint64
	RequestId string
}

func (e RoundAdvancing) Type() string { return "round_advancing" }

type WinnerResolved struct {
	RoundSeq    uint64
	Winner      string
	Payout      uint64
	RandomValue uint64
}

func (e WinnerResolved) Type() string { return "winner_resolved" }

type RoundOpened struct {
	RoundSeq uint64
}

func (e RoundOpened) Type() string { return "round_opened" }
