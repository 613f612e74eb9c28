package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGatewayDispatchUser(t *testing.T) {
	gw := New()
	gw.Start(context.Background())
	defer gw.Stop()

	var handled atomic.Int32
	if err := gw.DispatchUser("discord:1", "dm", func(context.Context) error {
		handled.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if !gw.Queue.WaitIdle(time.Second) {
		t.Fatal("gateway did not drain")
	}
	if handled.Load() != 1 {
		t.Errorf("expected 1 handled event, got %d", handled.Load())
	}
}

func TestGatewaySerialisesSameUser(t *testing.T) {
	gw := New(8)
	gw.Start(context.Background())
	defer gw.Stop()

	var mu sync.Mutex
	inFlight := 0
	overlap := false

	for i := 0; i < 5; i++ {
		err := gw.DispatchUser("discord:1", "command", func(context.Context) error {
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if !gw.Queue.WaitIdle(2 * time.Second) {
		t.Fatal("gateway did not drain")
	}
	if overlap {
		t.Error("expected events for the same user to run one at a time")
	}
}

func TestGatewayUserAndChannelLanesAreIndependent(t *testing.T) {
	gw := New(2)
	gw.Start(context.Background())
	defer gw.Stop()

	release := make(chan struct{})
	var channelDone atomic.Bool

	if err := gw.DispatchUser("x", "dm", func(context.Context) error {
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := gw.DispatchChannel("x", "announcement", func(context.Context) error {
		channelDone.Store(true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for !channelDone.Load() {
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("channel lane blocked behind user lane")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
}
