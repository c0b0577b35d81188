package events

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func body(t *testing.T) []*message.Envelope {
	t.Helper()
	env, err := message.New("OrderPlaced", map[string]int{"n": 1})
	require.NoError(t, err)
	return []*message.Envelope{env}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLog(log.NewWithOutput(&buf, "info"))

	sink.FaultOccurred("id-1", body(t), errBoom)
	sink.QueueCreated("orderplaced")
	sink.Listening("OrderPlaced")

	out := buf.String()
	assert.Contains(t, out, "Message faulted: boom")
	assert.Contains(t, out, "id=id-1")
	assert.Contains(t, out, "type=OrderPlaced")
	assert.Contains(t, out, "queue=orderplaced")
	assert.Contains(t, out, "Listening")
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b, Nop{}}

	m.FaultOccurred("x", nil, errBoom)
	m.QueueCreated("q")
	m.Listening("T")

	for _, r := range []*Recorder{a, b} {
		require.Len(t, r.Faults(), 1)
		assert.Equal(t, "x", r.Faults()[0].ID)
		assert.Equal(t, []string{"q"}, r.Created())
		assert.Equal(t, []string{"T"}, r.Listened())
	}
}

func TestRecorder_FaultsMatching(t *testing.T) {
	r := &Recorder{}
	other := errors.New("other")
	r.FaultOccurred("1", nil, errBoom)
	r.FaultOccurred("2", nil, other)
	r.FaultOccurred("3", nil, errors.Join(errBoom, other))

	got := r.FaultsMatching(errBoom)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestAsync_DeliversAll(t *testing.T) {
	rec := &Recorder{}
	a, err := NewAsync(rec, 4, log.Discard())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		a.QueueCreated("q")
	}
	a.FaultOccurred("id", body(t), errBoom)
	require.NoError(t, a.Close(time.Second))

	assert.Len(t, rec.Created(), 50)
	require.Len(t, rec.Faults(), 1)
	assert.ErrorIs(t, rec.Faults()[0].Err, errBoom)
}

func TestAsync_InlineAfterClose(t *testing.T) {
	rec := &Recorder{}
	a, err := NewAsync(rec, 1, log.Discard())
	require.NoError(t, err)
	require.NoError(t, a.Close(time.Second))

	a.Listening("T")
	assert.Equal(t, []string{"T"}, rec.Listened())
}

type panicking struct {
	Nop
	calls atomic.Int32
}

func (p *panicking) Listening(string) {
	p.calls.Add(1)
	panic("sink failure")
}

func TestAsync_SinkPanicIsContained(t *testing.T) {
	sink := &panicking{}
	a, err := NewAsync(sink, 2, log.Discard())
	require.NoError(t, err)

	a.Listening("T")
	a.Listening("T")
	require.NoError(t, a.Close(time.Second))

	assert.Equal(t, int32(2), sink.calls.Load())
}
