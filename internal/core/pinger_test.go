package core

import (
	"context"
	"testing"
	"time"
)

func TestNewPingerHardcodesSweepInterval(t *testing.T) {
	p := NewPinger(NewUserRegistry(), time.Minute)
	if p.Interval != SweepInterval {
		t.Fatalf("expected Interval to be the hardcoded %v, got %v", SweepInterval, p.Interval)
	}
}

func TestSweepPingsLiveUsersAndClosesTimedOutOnes(t *testing.T) {
	users := NewUserRegistry()

	alive := newFakeHandle("alive")
	timedOut := newFakeHandle("timed-out")

	users.OnConnect(alive, "127.0.0.1")
	stale := users.OnConnect(timedOut, "127.0.0.1")
	// Force the stale user's last pong far enough in the past to trip
	// the timeout on the next sweep.
	stale.mu.Lock()
	stale.lastPongAt = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	p := &Pinger{Users: users, Interval: 5 * time.Millisecond, Timeout: time.Minute}
	ping := []byte("ping")
	p.sweep(ping)

	if !timedOut.Expired() {
		t.Fatal("expected the stale user's connection to be closed")
	}
	if alive.Expired() {
		t.Fatal("did not expect the live user's connection to be closed")
	}
	if got := alive.last(); got != "ping" {
		t.Fatalf("expected the live user to receive a ping, got %q", got)
	}
	if len(timedOut.messages()) != 0 {
		t.Fatal("did not expect a ping to be sent to the user being disconnected")
	}
}

func TestPingerRunStopsOnContextCancel(t *testing.T) {
	p := &Pinger{Users: NewUserRegistry(), Interval: 2 * time.Millisecond, Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after ctx was canceled")
	}
}
