package localrng

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lotterylab/lotteryd/internal/core/ports"
)

// service is an in-process randomness provider honoring the external
// request/fulfill protocol: each request gets an opaque id and its
// random value is delivered asynchronously after a configurable delay,
// exactly once.
type service struct {
	delay time.Duration

	fulfillmentsCh chan ports.RandomFulfillment
	quit           chan struct{}
	wg             sync.WaitGroup
	closeOnce      sync.Once
}

func NewService(delay time.Duration) ports.RandomnessSource {
	return &service{
		delay:          delay,
		fulfillmentsCh: make(chan ports.RandomFulfillment),
		quit:           make(chan struct{}),
	}
}

func (s *service) RequestRandomness(_ context.Context, _ string) (string, error) {
	select {
	case <-s.quit:
		return "", fmt.Errorf("randomness provider is closed")
	default:
	}

	requestId := uuid.New().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-s.quit:
			return
		case <-timer.C:
		}

		randomValue, err := randomUint64()
		if err != nil {
			return
		}

		select {
		case <-s.quit:
		case s.fulfillmentsCh <- ports.RandomFulfillment{
			RequestId:   requestId,
			RandomValue: randomValue,
		}:
		}
	}()

	return requestId, nil
}

func (s *service) Fulfillments() <-chan ports.RandomFulfillment {
	return s.fulfillmentsCh
}

func (s *service) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		close(s.fulfillmentsCh)
	})
}

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
