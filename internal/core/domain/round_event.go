package domain

const RoundTopic = "round"

type RoundEvent interface {
	GetTopic() string
}

func (r RoundStarted) GetTopic() string     { return RoundTopic }
func (r TicketRegistered) GetTopic() string { return RoundTopic }
func (r DrawStarted) GetTopic() string      { return RoundTopic }
func (r RoundFinalized) GetTopic() string   { return RoundTopic }

type RoundStarted struct {
	Id        string
	Seq       uint64
	Timestamp int64
}

type TicketRegistered struct {
	Id     string
	Ticket Ticket
}

type DrawStarted struct {
	Id        string
	RequestId string
	Timestamp int64
}

type RoundFinalized struct {
	Id          string
	Winner      string
	Payout      uint64
	RandomValue uint64
	Timestamp   int64
}
