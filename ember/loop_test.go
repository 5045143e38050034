package ember

import (
	"testing"
	"time"
)

func TestLoopRunsPostedWorkInOrder(t *testing.T) {
	loop := NewLoop()
	go loop.Run()
	defer loop.Stop()

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		loop.Post(func() { results <- i })
	}
	for want := 1; want <= 3; want++ {
		select {
		case got := <-results:
			if got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("posted work never ran")
		}
	}
}

func TestLoopTimerFires(t *testing.T) {
	loop := NewLoop()
	go loop.Run()
	defer loop.Stop()

	fired := make(chan struct{})
	loop.After(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}
}

func TestLoopTimerCancel(t *testing.T) {
	loop := NewLoop()
	go loop.Run()
	defer loop.Stop()

	fired := make(chan struct{}, 1)
	timer := loop.After(20*time.Millisecond, func() { fired <- struct{}{} })
	timer.Cancel()
	select {
	case <-fired:
		t.Fatalf("cancelled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestLoopStopDropsLaterPosts(t *testing.T) {
	loop := NewLoop()
	go loop.Run()
	loop.Stop()
	// must not block or panic after stop
	loop.Post(func() {})
}
