package notify_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/notify/notifytest"
)

var testPolicy = notify.RetryPolicy{
	MaxAttempts:    3,
	BaseDelay:      time.Millisecond,
	MaxDelay:       2 * time.Millisecond,
	AttemptTimeout: 50 * time.Millisecond,
}

func message(channel string, typ notify.EventType, bookingID string) notify.Message {
	return notify.Message{
		Channel: channel,
		Type:    typ,
		Payload: notify.Payload{BookingID: bookingID},
	}
}

func TestPublishPreservesOrderPerChannel(t *testing.T) {
	rec := &notifytest.Recorder{}
	e := notify.NewEngine(notify.Config{Policy: testPolicy, Shards: 4}, notify.Sink{Name: "rec", Publisher: rec})
	defer e.Close()

	for i := 0; i < 50; i++ {
		e.Publish(
			message(notify.DriverChannel(7), notify.EventBookingAssigned, "a"),
			message(notify.ChannelAdmin, notify.EventBookingAssigned, "b"),
		)
	}
	e.Flush()

	byChannel := map[string][]uint64{}
	for _, env := range rec.Envelopes() {
		byChannel[env.Channel] = append(byChannel[env.Channel], env.Seq)
	}
	require.Len(t, byChannel, 2)
	for ch, seqs := range byChannel {
		assert.Len(t, seqs, 50, ch)
		assert.True(t, sort.SliceIsSorted(seqs, func(i, j int) bool { return seqs[i] < seqs[j] }), ch)
	}
}

func TestPublishAssignsEnvelopeIdentity(t *testing.T) {
	rec := &notifytest.Recorder{}
	e := notify.NewEngine(notify.Config{Policy: testPolicy}, notify.Sink{Name: "rec", Publisher: rec})
	defer e.Close()

	envs := e.Publish(
		message(notify.ChannelDrivers, notify.EventLiveBookingAdded, "x"),
		message(notify.ChannelAdmin, notify.EventBookingCreated, "x"),
	)
	require.Len(t, envs, 2)
	assert.NotEmpty(t, envs[0].ID)
	assert.NotEqual(t, envs[0].ID, envs[1].ID)
	assert.Less(t, envs[0].Seq, envs[1].Seq)
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	good := &notifytest.Recorder{}
	bad := notify.PublisherFunc(func(ctx context.Context, env notify.Envelope) error {
		return errors.New("брокер недоступен")
	})
	e := notify.NewEngine(notify.Config{Policy: testPolicy},
		notify.Sink{Name: "bad", Publisher: bad},
		notify.Sink{Name: "good", Publisher: good},
	)
	defer e.Close()

	e.Publish(message(notify.ChannelAdmin, notify.EventBookingExpired, "b1"))
	e.Flush()

	assert.Len(t, good.Find(notify.EventBookingExpired, notify.ChannelAdmin), 1)
}

func TestTransientFailureIsRetried(t *testing.T) {
	rec := &notifytest.Recorder{FailFirst: 2, Err: errors.New("timeout")}
	e := notify.NewEngine(notify.Config{Policy: testPolicy}, notify.Sink{Name: "rec", Publisher: rec})
	defer e.Close()

	e.Publish(message(notify.ChannelAdmin, notify.EventBookingCreated, "b1"))
	e.Flush()

	assert.Equal(t, 3, rec.Calls())
	assert.Len(t, rec.Envelopes(), 1)
}

func TestPublishDoesNotBlockOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	slow := notify.PublisherFunc(func(ctx context.Context, env notify.Envelope) error {
		<-release
		return nil
	})
	e := notify.NewEngine(notify.Config{Policy: testPolicy, QueueSize: 1, Shards: 1}, notify.Sink{Name: "slow", Publisher: slow})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e.Publish(message(notify.ChannelAdmin, notify.EventBookingCreated, "b"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish заблокировался на медленном sink")
	}
	close(release)
	e.Close()
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	rec := &notifytest.Recorder{}
	e := notify.NewEngine(notify.Config{Policy: testPolicy}, notify.Sink{Name: "rec", Publisher: rec})
	e.Close()
	e.Close()

	assert.Nil(t, e.Publish(message(notify.ChannelAdmin, notify.EventBookingCreated, "b")))
	assert.Empty(t, rec.Envelopes())
}

func TestCloseDrainsQueues(t *testing.T) {
	rec := &notifytest.Recorder{}
	e := notify.NewEngine(notify.Config{Policy: testPolicy}, notify.Sink{Name: "rec", Publisher: rec})

	for i := 0; i < 20; i++ {
		e.Publish(message(notify.ChannelDrivers, notify.EventLiveBookingUpdated, "b"))
	}
	e.Close()

	assert.Len(t, rec.Envelopes(), 20)
}

type tokenDir struct {
	mu      sync.Mutex
	drivers map[uint]models.User
	removed map[uint][]string
}

func (d *tokenDir) FindDrivers(ctx context.Context, ids []uint) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := d.drivers[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *tokenDir) RemoveDeviceTokens(ctx context.Context, driverID uint, tokens []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed == nil {
		d.removed = map[uint][]string{}
	}
	d.removed[driverID] = append(d.removed[driverID], tokens...)
	return nil
}

func (d *tokenDir) Removed() map[uint][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[uint][]string{}
	for k, v := range d.removed {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func TestPushPrunesInvalidTokens(t *testing.T) {
	dir := &tokenDir{drivers: map[uint]models.User{
		1: {ID: 1, DeviceTokens: []string{"t1", "t1-old"}},
		2: {ID: 2, DeviceTokens: []string{"t2"}},
	}}
	sender := &notifytest.PushSender{Invalid: map[string]bool{"t1-old": true}}
	e := notify.NewEngine(notify.Config{Policy: testPolicy, Push: sender, Drivers: dir})
	defer e.Close()

	require.True(t, e.PushEnabled())
	e.Push(notify.PushRequest{BookingID: "b1", DriverIDs: []uint{1, 2}, Title: "Новый заказ", Body: "TR-000001"})
	e.Flush()

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"t1", "t1-old", "t2"}, calls[0].Tokens)
	assert.Equal(t, map[uint][]string{1: {"t1-old"}}, dir.Removed())
}

func TestPushFailureKeepsTokens(t *testing.T) {
	dir := &tokenDir{drivers: map[uint]models.User{1: {ID: 1, DeviceTokens: []string{"t1"}}}}
	sender := &notifytest.PushSender{Err: errors.New("fcm 503")}
	e := notify.NewEngine(notify.Config{Policy: testPolicy, Push: sender, Drivers: dir})
	defer e.Close()

	e.Push(notify.PushRequest{BookingID: "b1", DriverIDs: []uint{1}})
	e.Flush()

	assert.Len(t, sender.Calls(), testPolicy.MaxAttempts)
	assert.Empty(t, dir.Removed())
}

func TestPushWithoutSenderIsNoop(t *testing.T) {
	e := notify.NewEngine(notify.Config{Policy: testPolicy})
	defer e.Close()

	assert.False(t, e.PushEnabled())
	e.Push(notify.PushRequest{BookingID: "b1", DriverIDs: []uint{1}})
	e.Flush()
}

func TestEnvelopeDelivers(t *testing.T) {
	all := notify.Envelope{}
	assert.True(t, all.Delivers(5))

	some := notify.Envelope{Recipients: []uint{1, 3}}
	assert.True(t, some.Delivers(3))
	assert.False(t, some.Delivers(2))

	none := notify.Envelope{Recipients: []uint{}}
	assert.False(t, none.Delivers(1))
}

func TestDriverChannelRoundTrip(t *testing.T) {
	id, ok := notify.ParseDriverChannel(notify.DriverChannel(42))
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	_, ok = notify.ParseDriverChannel(notify.ChannelDrivers)
	assert.False(t, ok)
	_, ok = notify.ParseDriverChannel("driver:abc")
	assert.False(t, ok)

	assert.Equal(t, "driver", notify.ChannelKind(notify.DriverChannel(3)))
	assert.Equal(t, notify.ChannelAdmin, notify.ChannelKind(notify.ChannelAdmin))
}
