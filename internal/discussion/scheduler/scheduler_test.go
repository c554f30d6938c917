package scheduler

import (
	"testing"
	"time"

	"github.com/kandev/agora/internal/common/logger"
)

func newTestScheduler() *Scheduler {
	s := New(logger.Default())
	s.Start()
	return s
}

func TestArmFiresAfterDelay(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	fired := make(chan int, 1)
	s.Arm("d1", 1, 10*time.Millisecond, func(discussionID string, turnNumber int) {
		fired <- turnNumber
	})

	select {
	case tn := <-fired:
		if tn != 1 {
			t.Errorf("expected turnNumber 1, got %d", tn)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer to fire")
	}
}

func TestArmCancelsPreviousTimer(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	fired := make(chan int, 2)
	s.Arm("d1", 1, 20*time.Millisecond, func(discussionID string, turnNumber int) {
		fired <- turnNumber
	})
	s.Arm("d1", 2, 20*time.Millisecond, func(discussionID string, turnNumber int) {
		fired <- turnNumber
	})

	select {
	case tn := <-fired:
		if tn != 2 {
			t.Errorf("expected only the second arm (turnNumber 2) to fire, got %d", tn)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer to fire")
	}

	select {
	case tn := <-fired:
		t.Errorf("expected no second fire, got turnNumber %d", tn)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	fired := make(chan int, 1)
	s.Arm("d1", 1, 20*time.Millisecond, func(discussionID string, turnNumber int) {
		fired <- turnNumber
	})
	if !s.Cancel("d1") {
		t.Error("expected Cancel to report a timer was cancelled")
	}

	select {
	case tn := <-fired:
		t.Errorf("expected cancelled timer not to fire, got turnNumber %d", tn)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelUnknownDiscussionReturnsFalse(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	if s.Cancel("missing") {
		t.Error("expected Cancel on unknown discussion to return false")
	}
}

func TestArmedReflectsOutstandingTimer(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	if s.Armed("d1") {
		t.Error("expected not armed before Arm is called")
	}
	s.Arm("d1", 1, time.Second, func(string, int) {})
	if !s.Armed("d1") {
		t.Error("expected armed after Arm is called")
	}
	s.Cancel("d1")
	if s.Armed("d1") {
		t.Error("expected not armed after Cancel")
	}
}

func TestStopCancelsAllOutstandingTimers(t *testing.T) {
	s := newTestScheduler()

	fired := make(chan int, 1)
	s.Arm("d1", 1, 20*time.Millisecond, func(discussionID string, turnNumber int) {
		fired <- turnNumber
	})
	s.Stop()

	select {
	case tn := <-fired:
		t.Errorf("expected no fire after Stop, got turnNumber %d", tn)
	case <-time.After(50 * time.Millisecond):
	}
}
