package ports

import "context"

type RandomFulfillment struct {
	RequestId   string
	RandomValue uint64
}

// RandomnessSource implements the request/fulfill protocol of an external
// verifiable randomness provider. RequestRandomness returns an opaque
// request id synchronously; the random value for that id is delivered
// at an arbitrary later time on the Fulfillments channel, at most once
// per request id.
type RandomnessSource interface {
	RequestRandomness(ctx context.Context, roundId string) (string, error)
	Fulfillments() <-chan RandomFulfillment
	Close()
}
