package realtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisEvent(t *testing.T) {
	tests := []struct {
		name   string
		msg    any
		prefix string
		want   string
		wantOK bool
	}{
		{"plain channel", &redis.Message{Channel: "log:update"}, "", "log:update", true},
		{"prefixed", &redis.Message{Channel: "novadash:log:update", Payload: "x"}, "novadash:", "log:update", true},
		{"foreign prefix", &redis.Message{Channel: "other:log:update"}, "novadash:", "", false},
		{"subscription ack", &redis.Subscription{Kind: "subscribe", Channel: "log:update", Count: 1}, "", "", false},
		{"pong", &redis.Pong{}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := redisEvent(tt.msg, tt.prefix)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ev.Name != tt.want {
				t.Errorf("Name = %q, want %q", ev.Name, tt.want)
			}
		})
	}
}

func TestRedisDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck

	client := NewRedisClient(addr, "", 0)
	defer client.Close() //nolint:errcheck

	d := &RedisDialer{Client: client}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("expected error dialing a closed port")
	}
}

func TestRedisDialNoClient(t *testing.T) {
	d := &RedisDialer{}
	if _, err := d.Dial(context.Background()); err == nil {
		t.Fatal("expected error without client")
	}
}
