package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enviroscan-backend/internal/models"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []published
	token    *fakeToken
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{token: &fakeToken{complete: true}}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return b.token
}

func (b *fakeBroker) snapshot() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func testReading() *models.Reading {
	return &models.Reading{
		ID:            "r-1",
		Timestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RawPPM:        80,
		CalibratedPPM: 79,
		AQI:           79,
		GasPercentage: 0.79,
		IP:            "192.168.43.240",
		MAC:           "98:F4:AB:F9:34:22",
	}
}

func TestPublishReading(t *testing.T) {
	broker := newFakeBroker()
	p := NewPublisher(broker, DefaultPublisherConfig(), nil)

	require.NoError(t, p.publishReading(testReading()))

	msgs := broker.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "enviroscan/98f4abf93422/reading", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].payload, &body))
	assert.Equal(t, "2024-03-01 12:00:00", body["timestamp"])
	assert.Equal(t, 80.0, body["raw_ppm"])
	assert.Equal(t, 79.0, body["ml_ppm"])
}

func TestPublishReading_Errors(t *testing.T) {
	broker := newFakeBroker()
	p := NewPublisher(broker, DefaultPublisherConfig(), nil)

	broker.token = &fakeToken{complete: true, err: errors.New("not connected")}
	assert.ErrorContains(t, p.publishReading(testReading()), "not connected")

	broker.token = &fakeToken{complete: false}
	assert.ErrorContains(t, p.publishReading(testReading()), "timed out")
}

func TestPublisher_StartDrainsUntilClosed(t *testing.T) {
	broker := newFakeBroker()
	ch := make(chan *models.Reading, 3)
	p := NewPublisher(broker, DefaultPublisherConfig(), ch)

	for i := 0; i < 3; i++ {
		ch <- testReading()
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop after channel close")
	}
	assert.Len(t, broker.snapshot(), 3)
}

func TestPublisher_StopsOnCancel(t *testing.T) {
	p := NewPublisher(newFakeBroker(), DefaultPublisherConfig(), make(chan *models.Reading))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "enviroscan/abc/reading", formatTopic("enviroscan/{device_id}/reading", "abc"))
	assert.Equal(t, "enviroscan/unknown/reading", formatTopic("enviroscan/{device_id}/reading", ""))
	assert.Equal(t, "fixed/topic", formatTopic("fixed/topic", "abc"))
}
