package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (r *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

type recordingPublisher struct {
	got []models.DepositEvent
	err error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev models.DepositEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func sampleEvent() models.DepositEvent {
	return models.DepositEvent{
		Type:        models.EventDepositCaptured,
		DepositID:   "dep-1",
		TaskID:      "task-1",
		MoveID:      "move-1",
		Status:      models.DepositCaptured,
		AmountCents: 5000,
	}
}

func TestKafkaPublisher_KeysByTask(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "task-1", string(w.msgs[0].Key))
	assert.Equal(t, "deposit.captured", string(w.msgs[0].Headers[0].Value))

	var ev models.DepositEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, int64(5000), ev.AmountCents)
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("broker down")}
	c := &recordingPublisher{}

	err := Fanout{a, nil, b, c}.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, a.got, 1)
	assert.Len(t, c.got, 1)

	assert.NoError(t, Nop{}.Publish(context.Background(), sampleEvent()))
}
