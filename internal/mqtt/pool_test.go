package mqtt

import (
	"context"
	"errors"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/sirupsen/logrus"
)

func TestClient_PublishWhileDisconnected(t *testing.T) {
	c := &Client{}
	if c.Connected() {
		t.Fatal("Connected() = true for a client without a connection")
	}
	err := c.Publish(context.Background(), "t", []byte("x"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v; want ErrNotConnected", err)
	}
}

func TestPool_NoLiveConnection(t *testing.T) {
	p := &Pool{clients: []*Client{{}, {}}}

	if got := p.Connected(); got != 0 {
		t.Errorf("Connected() = %d; want 0", got)
	}
	err := p.Publish(context.Background(), "t", []byte("x"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v; want ErrNotConnected", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v; want nil", err)
	}
}

func TestRoutePahoLogs(t *testing.T) {
	routePahoLogs(log.Discard())

	entry, ok := paho.ERROR.(*logrus.Entry)
	if !ok {
		t.Fatalf("paho.ERROR = %T; want *logrus.Entry", paho.ERROR)
	}
	if entry.Data["component"] != "paho" {
		t.Errorf("component = %v; want paho", entry.Data["component"])
	}
}
