package localrng_test

import (
	"context"
	"testing"
	"time"

	localrng "github.com/lotterylab/lotteryd/internal/infrastructure/rng/local"
	"github.com/stretchr/testify/require"
)

func TestRequestRandomness(t *testing.T) {
	svc := localrng.NewService(10 * time.Millisecond)
	defer svc.Close()

	requestId, err := svc.RequestRandomness(context.Background(), "round-id")
	require.NoError(t, err)
	require.NotEmpty(t, requestId)

	otherId, err := svc.RequestRandomness(context.Background(), "round-id")
	require.NoError(t, err)
	require.NotEqual(t, requestId, otherId)

	seen := make(map[string]struct{})
	for i := 0; i < 2; i++ {
		select {
		case fulfillment := <-svc.Fulfillments():
			seen[fulfillment.RequestId] = struct{}{}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fulfillment")
		}
	}

	require.Contains(t, seen, requestId)
	require.Contains(t, seen, otherId)
}

func TestClose(t *testing.T) {
	svc := localrng.NewService(time.Hour)

	_, err := svc.RequestRandomness(context.Background(), "round-id")
	require.NoError(t, err)

	svc.Close()

	_, err = svc.RequestRandomness(context.Background(), "round-id")
	require.Error(t, err)

	// pending requests are abandoned and the channel is drained
	_, ok := <-svc.Fulfillments()
	require.False(t, ok)
}
