package redis

import (
	"testing"

	"github.com/ibs-source/queuebus/internal/queue"
)

func TestKeyLayout(t *testing.T) {
	p := &Provider{prefix: "qb"}

	tests := []struct {
		got  string
		want string
	}{
		{p.queuesKey(), "qb:queues"},
		{p.listKey("orders", queue.Input), "qb:orders"},
		{p.listKey("orders", queue.Pending), "qb:orders;pending"},
		{p.listKey("orders", queue.Fault), "qb:orders;fault"},
		{p.listKey("orders", queue.Response), "qb:orders;response"},
		{p.bodyKey("orders"), "qb:orders:messages"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %s; want %s", tt.got, tt.want)
		}
	}
}

func TestDecode_SetsID(t *testing.T) {
	msg, err := decode("abc", []byte(`{"id":"stale","body":[{"type":"T","headers":null,"payload":1}]}`))
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if msg.ID != "abc" {
		t.Errorf("ID = %s; want abc", msg.ID)
	}
	if msg.Body[0].Headers == nil {
		t.Error("Headers = nil; want normalized map")
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := decode("abc", []byte("not json")); err == nil {
		t.Error("decode() error = nil; want error")
	}
}
