package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	// Invalid expressions are rejected
	if err := s.AddJob("not a cron", func() {}); err == nil {
		t.Errorf("Expected error adding invalid cron expression")
	}
}

func TestSchedulerAddDailyJob(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()
	if err := s.AddDailyJob(0, 5, func() {}); err != nil {
		t.Errorf("Expected no error adding daily job, got %v", err)
	}
	if err := s.AddDailyJob(25, 0, func() {}); err == nil {
		t.Errorf("Expected error for out-of-range hour")
	}
}
