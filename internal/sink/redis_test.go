package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/baton/internal/event"
)

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisSinkPublishes(t *testing.T) {
	client, _ := newRedisClient(t)
	ctx := context.Background()

	ps := client.Subscribe(ctx, "baton.events")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirmation: %v", err)
	}

	s := NewRedisSink(client, "baton.events")
	bus := event.NewBus()
	if _, err := Forward(bus, s, ForwardOptions{Pattern: "doubler_*"}); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	bus.Publish(event.Complete("doubler", "inv-1", 10))

	select {
	case msg := <-ps.Channel():
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Event != "doubler_complete" || env.InvocationID != "inv-1" {
			t.Errorf("envelope = %+v", env)
		}
		if env.Result != float64(10) {
			t.Errorf("result = %v, want 10", env.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published event")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		t.Errorf("borrowed client should stay open after Close: %v", err)
	}
}

func TestDialRedis(t *testing.T) {
	_, mr := newRedisClient(t)
	ctx := context.Background()

	s, err := DialRedis(ctx, mr.Addr(), "events")
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	if err := s.Send(ctx, Envelope{Event: "ping"}); err != nil {
		t.Errorf("Send with no subscribers: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDialRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := DialRedis(ctx, addr, "events"); err == nil {
		t.Error("expected an error dialing a closed server")
	}
}

func TestRedisSinkSendError(t *testing.T) {
	client, mr := newRedisClient(t)
	s := NewRedisSink(client, "events")
	mr.SetError("READONLY replica")

	if err := s.Send(context.Background(), Envelope{Event: "x"}); err == nil {
		t.Error("expected the server error to surface")
	}
}
