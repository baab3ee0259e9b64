package timescheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/lotterylab/lotteryd/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleTaskRecurring(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval")
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().Do(task)
	return err
}
