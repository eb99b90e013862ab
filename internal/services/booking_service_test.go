package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
)

func uintPtr(v uint) *uint { return &v }

func TestClassifyAssignment(t *testing.T) {
	assert.Equal(t, models.AssignmentAuto, services.ClassifyAssignment(149.99, 150))
	assert.Equal(t, models.AssignmentAdmin, services.ClassifyAssignment(150, 150))
	assert.Equal(t, models.AssignmentAdmin, services.ClassifyAssignment(300, 150))
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	cases := map[string]func(in *models.BookingCreate){
		"пустой маршрут":     func(in *models.BookingCreate) { in.Origin = "  " },
		"нет пассажиров":     func(in *models.BookingCreate) { in.Passengers = 0 },
		"подача в прошлом":   func(in *models.BookingCreate) { in.ScheduledAt = e.clock.Now().Add(-time.Minute) },
		"нулевая цена":       func(in *models.BookingCreate) { in.Price = 0 },
		"неизвестный класс":  func(in *models.BookingCreate) { in.Category = "вертолет" },
		"обратно раньше":     func(in *models.BookingCreate) { r := in.ScheduledAt.Add(-time.Hour); in.ReturnAt = &r },
		"отрицательная доля": func(in *models.BookingCreate) { in.Commission = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := e.input(100, true)
			mutate(&in)
			_, err := e.svc.Create(ctx, in)
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}

	t.Run("водитель не найден", func(t *testing.T) {
		in := e.input(200, true)
		in.DriverID = uintPtr(99)
		_, err := e.svc.Create(ctx, in)
		assert.ErrorIs(t, err, services.ErrValidation)
	})

	all, err := e.store.Find(ctx, repository.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateAutoPublishesToCompatibleDrivers(t *testing.T) {
	e := newTestEnv(t)
	b := e.create(t, 120, true)

	assert.Equal(t, models.AssignmentAuto, b.AssignmentType)
	assert.Equal(t, models.VehicleSedan, b.Category)
	assert.Equal(t, "TR-000001", b.OrderNumber)
	require.NotNil(t, b.NotificationsSentAt)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, e.clock.Now().Add(5*time.Minute), *b.ExpiresAt)
	assert.True(t, b.IsLive())

	fireAt, ok := e.expiry.Pending(b.ID)
	require.True(t, ok)
	assert.Equal(t, *b.ExpiresAt, fireAt)

	assert.Len(t, e.events(notify.EventBookingCreated, notify.ChannelAdmin), 1)
	live := e.events(notify.EventLiveBookingAdded, notify.ChannelDrivers)
	require.Len(t, live, 1)
	assert.Equal(t, []uint{1, 2}, live[0].Recipients)

	calls := e.push.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, calls[0].Tokens)
	assert.Equal(t, b.ID, calls[0].Data["booking_id"])

	listed, err := e.svc.ListLive(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(listed))
	listed, err = e.svc.ListLive(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestCreateWithoutOnlineDriversSendsNoBroadcast(t *testing.T) {
	e := newTestEnv(t)
	e.presence.set()
	b := e.create(t, 120, true)

	assert.True(t, b.IsLive())
	assert.Empty(t, e.events(notify.EventLiveBookingAdded, ""))
	assert.Len(t, e.events(notify.EventBookingCreated, notify.ChannelAdmin), 1)
	assert.Empty(t, e.push.Calls())
}

func TestCreateUnpaidWaitsForPayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, false)

	assert.Nil(t, b.NotificationsSentAt)
	assert.Nil(t, b.ExpiresAt)
	assert.False(t, b.IsLive())
	_, ok := e.expiry.Pending(b.ID)
	assert.False(t, ok)
	assert.Empty(t, e.rec.ForBooking(b.ID))

	_, sent, err := e.svc.PublishCreated(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, sent, "неоплаченный заказ не рассылается")

	_, err = e.svc.MarkPaid(ctx, b.ID, e.clock.Now())
	require.NoError(t, err)
	published, sent, err := e.svc.PublishCreated(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, published.IsLive())

	_, sent, err = e.svc.PublishCreated(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, e.events(notify.EventBookingCreated, notify.ChannelAdmin), 1)
	assert.Len(t, e.events(notify.EventLiveBookingAdded, notify.ChannelDrivers), 1)
	assert.Len(t, e.events(notify.EventBookingPaid, notify.ChannelAdmin), 1)
}

func TestExpiryFiresOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)

	e.clock.Advance(5 * time.Minute)
	e.expiry.fire(t, b.ID)

	got := e.reload(t, b.ID)
	assert.True(t, got.IsExpired)
	assert.Equal(t, models.BookingStatusPending, got.Status)
	assert.NotNil(t, got.ExpiredAt)
	assert.NotNil(t, got.ExpiryNotifiedAt)
	assert.False(t, got.IsLive())

	applied, err := e.svc.Expiry().Fire(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Len(t, e.events(notify.EventBookingExpired, notify.ChannelAdmin), 1)
	assert.Len(t, e.events(notify.EventBookingExpired, notify.ChannelDrivers), 1)
	removed := e.events(notify.EventLiveBookingRemoved, notify.ChannelDrivers)
	require.Len(t, removed, 1)
	assert.Equal(t, []uint{1, 2}, removed[0].Recipients)

	listed, err := e.svc.ListLive(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = e.svc.Accept(ctx, b.ID, 1)
	assert.ErrorIs(t, err, services.ErrBookingExpired)
}

func TestExpiryEarlyFireReschedules(t *testing.T) {
	e := newTestEnv(t)
	b := e.create(t, 120, true)

	e.clock.Advance(time.Minute)
	e.expiry.fire(t, b.ID)

	got := e.reload(t, b.ID)
	assert.False(t, got.IsExpired)
	fireAt, ok := e.expiry.Pending(b.ID)
	require.True(t, ok)
	assert.Equal(t, *b.ExpiresAt, fireAt)
	assert.Empty(t, e.events(notify.EventBookingExpired, ""))
}

func TestAdminBookingAssignedOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 200, true)

	assert.Equal(t, models.AssignmentAdmin, b.AssignmentType)
	assert.Nil(t, b.ExpiresAt)
	assert.False(t, b.IsLive())
	_, ok := e.expiry.Pending(b.ID)
	assert.False(t, ok)

	assigned, err := e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, assigned.Status)
	assert.True(t, assigned.AssignedTo(1))

	// Повторное назначение того же водителя ничего не меняет
	_, err = e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)

	list, err := e.svc.ListAssigned(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(list))
	live, err := e.svc.ListLive(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, live)

	assert.Len(t, e.events(notify.EventAssignedBookingAdded, notify.DriverChannel(1)), 1)
	assert.Len(t, e.events(notify.EventBookingAssigned, notify.ChannelAdmin), 1)
	assert.Empty(t, e.events(notify.EventLiveBookingAdded, ""))
	assert.Len(t, e.push.Calls(), 1)
}

func TestReassignNotifiesPreviousDriver(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 200, true)

	_, err := e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)
	next, err := e.svc.Assign(ctx, b.ID, uintPtr(4))
	require.NoError(t, err)
	assert.True(t, next.AssignedTo(4))

	removed := e.events(notify.EventAssignedBookingRemoved, notify.DriverChannel(1))
	require.Len(t, removed, 1)
	require.NotNil(t, removed[0].Payload.PreviousDriverID)
	assert.Equal(t, uint(1), *removed[0].Payload.PreviousDriverID)
	assert.Len(t, e.events(notify.EventAssignedBookingAdded, notify.DriverChannel(4)), 1)

	list, err := e.svc.ListAssigned(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAssignAutoLeavesAndReentersLive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)

	_, err := e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)
	_, ok := e.expiry.Pending(b.ID)
	assert.False(t, ok)
	assert.Len(t, e.events(notify.EventLiveBookingRemoved, notify.ChannelDrivers), 1)

	e.clock.Advance(2 * time.Minute)
	back, err := e.svc.Assign(ctx, b.ID, nil)
	require.NoError(t, err)
	assert.True(t, back.IsLive())
	require.NotNil(t, back.ExpiresAt)
	assert.Equal(t, e.clock.Now().Add(5*time.Minute), *back.ExpiresAt)
	_, ok = e.expiry.Pending(b.ID)
	assert.True(t, ok)
	assert.Len(t, e.events(notify.EventLiveBookingAdded, notify.ChannelDrivers), 2)
}

func TestAssignClearsExpiry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)
	e.clock.Advance(5 * time.Minute)
	e.expiry.fire(t, b.ID)

	revived, err := e.svc.Assign(ctx, b.ID, nil)
	require.NoError(t, err)
	assert.False(t, revived.IsExpired)
	assert.Nil(t, revived.ExpiryNotifiedAt)
	assert.True(t, revived.IsLive())
	_, ok := e.expiry.Pending(b.ID)
	assert.True(t, ok)
}

func TestAcceptSchedulesReminder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)

	accepted, err := e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)
	assert.Nil(t, accepted.ExpiresAt)

	_, ok := e.expiry.Pending(b.ID)
	assert.False(t, ok)
	fireAt, ok := e.reminders.Pending(b.ID)
	require.True(t, ok)
	assert.Equal(t, b.ScheduledAt.Add(-30*time.Minute), fireAt)

	assert.Len(t, e.events(notify.EventLiveBookingRemoved, notify.ChannelDrivers), 1)
	assert.Len(t, e.events(notify.EventUpcomingBookingAdded, notify.DriverChannel(1)), 1)
	assert.Len(t, e.events(notify.EventBookingAccepted, notify.ChannelAdmin), 1)

	upcoming, err := e.svc.ListUpcoming(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(upcoming))
	live, err := e.svc.ListLive(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = e.svc.Accept(ctx, b.ID, 2)
	assert.True(t, services.IsInvalidTransition(err))
}

func TestAcceptCloseToTripSkipsReminder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	in := e.input(120, true)
	in.ScheduledAt = e.clock.Now().Add(20 * time.Minute)
	b, err := e.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)
	_, ok := e.reminders.Pending(b.ID)
	assert.False(t, ok)
}

func TestAcceptExactlyReminderLeadAway(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	in := e.input(120, true)
	in.ScheduledAt = e.clock.Now().Add(30 * time.Minute)
	b, err := e.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)
	fireAt, ok := e.reminders.Pending(b.ID)
	require.True(t, ok)
	assert.Equal(t, e.clock.Now(), fireAt)

	e.reminders.fire(t, b.ID)
	assert.Len(t, e.events(notify.EventBookingReminder, notify.DriverChannel(1)), 1)
	assert.NotNil(t, e.reload(t, b.ID).ReminderSentAt)
}

func TestAcceptIncompatibleVehicle(t *testing.T) {
	e := newTestEnv(t)
	b := e.create(t, 120, true)

	_, err := e.svc.Accept(context.Background(), b.ID, 3)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.True(t, e.reload(t, b.ID).IsLive())
}

func TestAcceptAssignedToOtherDriver(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 200, true)
	_, err := e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)

	_, err = e.svc.Accept(ctx, b.ID, 4)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Len(t, e.events(notify.EventAssignedBookingRemoved, notify.DriverChannel(1)), 1)
	assert.Len(t, e.events(notify.EventUpcomingBookingAdded, notify.DriverChannel(1)), 1)
}

func TestAcceptUnassignedAdminBooking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 200, true)
	require.Equal(t, models.AssignmentAdmin, b.AssignmentType)
	require.Nil(t, b.DriverID)

	for _, driverID := range []uint{1, 3} {
		_, err := e.svc.Accept(ctx, b.ID, driverID)
		assert.ErrorIs(t, err, services.ErrForbidden)
	}
	got := e.reload(t, b.ID)
	assert.Equal(t, models.BookingStatusPending, got.Status)
	assert.Nil(t, got.DriverID)
	assert.Empty(t, e.events(notify.EventBookingAccepted, notify.ChannelAdmin))
}

func TestCreateWithDriverIsAccepted(t *testing.T) {
	e := newTestEnv(t)
	in := e.input(90, true)
	in.DriverID = uintPtr(1)
	b, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentAdmin, b.AssignmentType)
	assert.Equal(t, models.BookingStatusAccepted, b.Status)
	_, ok := e.reminders.Pending(b.ID)
	assert.True(t, ok)
	_, ok = e.expiry.Pending(b.ID)
	assert.False(t, ok)
	assert.Len(t, e.events(notify.EventUpcomingBookingAdded, notify.DriverChannel(1)), 1)
	assert.Empty(t, e.events(notify.EventLiveBookingAdded, ""))
}

func TestRejectAutoKeepsBookingLiveForOthers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)

	got, err := e.svc.Reject(ctx, b.ID, 2, "далеко")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)
	assert.True(t, got.RejectedByDriver(2))
	assert.True(t, got.IsLive())

	live, err := e.svc.ListLive(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, live)
	live, err = e.svc.ListLive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(live))

	assert.Len(t, e.events(notify.EventLiveBookingRemoved, notify.DriverChannel(2)), 1)
	assert.Len(t, e.events(notify.EventBookingRejected, notify.ChannelAdmin), 1)

	// Повторный отказ не дублирует события
	_, err = e.svc.Reject(ctx, b.ID, 2, "далеко")
	require.NoError(t, err)
	assert.Len(t, e.events(notify.EventBookingRejected, notify.ChannelAdmin), 1)
}

func TestRejectAssignedAutoReturnsToLive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)
	_, err := e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)

	got, err := e.svc.Reject(ctx, b.ID, 1, "")
	require.NoError(t, err)
	assert.Nil(t, got.DriverID)
	assert.True(t, got.IsLive())
	_, ok := e.expiry.Pending(b.ID)
	assert.True(t, ok)

	added := e.events(notify.EventLiveBookingAdded, notify.ChannelDrivers)
	require.Len(t, added, 2)
	assert.Equal(t, []uint{2}, added[1].Recipients, "отказавшийся водитель не получает заказ повторно")
}

func TestRejectAdminBooking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 200, true)

	_, err := e.svc.Reject(ctx, b.ID, 1, "")
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.svc.Assign(ctx, b.ID, uintPtr(1))
	require.NoError(t, err)
	got, err := e.svc.Reject(ctx, b.ID, 1, "сломалась машина")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, got.Status)
	assert.Equal(t, "сломалась машина", got.RejectReason)

	rejected := e.events(notify.EventBookingRejected, notify.ChannelAdmin)
	require.Len(t, rejected, 1)
	assert.Equal(t, "сломалась машина", rejected[0].Payload.Reason)
	assert.Len(t, e.events(notify.EventAssignedBookingRemoved, notify.DriverChannel(1)), 1)

	_, err = e.svc.Assign(ctx, b.ID, uintPtr(4))
	assert.True(t, services.IsInvalidTransition(err))
}

func TestAdvanceFollowsTripOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)
	_, err := e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)

	_, err = e.svc.Advance(ctx, b.ID, 1, models.BookingStatusPickedUp)
	assert.True(t, services.IsInvalidTransition(err))
	_, err = e.svc.Advance(ctx, b.ID, 4, models.BookingStatusStarted)
	assert.ErrorIs(t, err, services.ErrForbidden)

	steps := []models.BookingStatus{
		models.BookingStatusStarted,
		models.BookingStatusPickedUp,
		models.BookingStatusDroppedOff,
		models.BookingStatusCompleted,
	}
	for _, st := range steps {
		e.clock.Advance(time.Minute)
		got, err := e.svc.Advance(ctx, b.ID, 1, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status)
	}
	_, ok := e.reminders.Pending(b.ID)
	assert.False(t, ok, "напоминание снимается после выезда")

	done := e.reload(t, b.ID)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.PickedUpAt)
	assert.NotNil(t, done.DroppedOffAt)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, []notify.EventType{
		notify.EventBookingAccepted,
		notify.EventUpcomingBookingAdded,
		notify.EventBookingStarted,
		notify.EventUpcomingBookingRemoved,
		notify.EventBookingPickedUp,
		notify.EventBookingDroppedOff,
		notify.EventBookingCompleted,
	}, e.types(b.ID, notify.DriverChannel(1)))

	_, err = e.svc.Cancel(ctx, b.ID, "")
	assert.True(t, services.IsInvalidTransition(err))
}

func TestCancelAcceptedBooking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)
	_, err := e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)

	got, err := e.svc.Cancel(ctx, b.ID, "клиент передумал")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	_, ok := e.reminders.Pending(b.ID)
	assert.False(t, ok)

	assert.Len(t, e.events(notify.EventBookingCancelled, notify.ChannelAdmin), 1)
	assert.Len(t, e.events(notify.EventBookingCancelled, notify.DriverChannel(1)), 1)
	assert.Len(t, e.events(notify.EventUpcomingBookingRemoved, notify.DriverChannel(1)), 1)

	// Таймер, сработавший после отмены, ничего не делает
	applied, err := e.svc.Reminders().Fire(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCancelLiveBooking(t *testing.T) {
	e := newTestEnv(t)
	b := e.create(t, 120, true)

	_, err := e.svc.Cancel(context.Background(), b.ID, "")
	require.NoError(t, err)
	_, ok := e.expiry.Pending(b.ID)
	assert.False(t, ok)
	assert.Len(t, e.events(notify.EventLiveBookingRemoved, notify.ChannelDrivers), 1)

	applied, err := e.svc.Expiry().Fire(context.Background(), b.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestReminderFiresOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.create(t, 120, true)
	_, err := e.svc.Accept(ctx, b.ID, 1)
	require.NoError(t, err)

	e.clock.Advance(150 * time.Minute)
	e.reminders.fire(t, b.ID)
	assert.NotNil(t, e.reload(t, b.ID).ReminderSentAt)

	applied, err := e.svc.Reminders().Fire(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Len(t, e.events(notify.EventBookingReminder, notify.DriverChannel(1)), 1)
	var reminders int
	for _, c := range e.push.Calls() {
		if c.Data["type"] == string(notify.EventBookingReminder) {
			reminders++
			assert.Equal(t, []string{"tok-1"}, c.Tokens)
		}
	}
	assert.Equal(t, 1, reminders)
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.Get(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = e.svc.Accept(ctx, "missing", 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.svc.Cancel(ctx, "missing", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecover(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	past := now.Add(-time.Minute)

	seed := func(b *models.Booking) {
		b.Version = 1
		b.OrderNumber = "TR-" + b.ID
		b.Origin, b.Destination = "A", "B"
		b.Category = models.VehicleSedan
		b.Passengers = 1
		b.Price = 100
		if b.ScheduledAt.IsZero() {
			b.ScheduledAt = now.Add(3 * time.Hour)
		}
		require.NoError(t, e.store.Create(ctx, b))
	}

	overdue := &models.Booking{ID: "overdue", Status: models.BookingStatusPending, AssignmentType: models.AssignmentAuto,
		PaymentPaid: true, NotificationsSentAt: &past, ExpiresAt: &past}
	unpublished := &models.Booking{ID: "unpublished", Status: models.BookingStatusPending, AssignmentType: models.AssignmentAuto,
		PaymentPaid: true}
	upcoming := &models.Booking{ID: "upcoming", Status: models.BookingStatusAccepted, AssignmentType: models.AssignmentAuto,
		PaymentPaid: true, NotificationsSentAt: &past, DriverID: uintPtr(1), ScheduledAt: now.Add(2 * time.Hour)}
	soon := &models.Booking{ID: "soon", Status: models.BookingStatusAccepted, AssignmentType: models.AssignmentAdmin,
		PaymentPaid: true, NotificationsSentAt: &past, DriverID: uintPtr(1), ScheduledAt: now.Add(10 * time.Minute)}
	gone := &models.Booking{ID: "gone", Status: models.BookingStatusAccepted, AssignmentType: models.AssignmentAdmin,
		PaymentPaid: true, NotificationsSentAt: &past, DriverID: uintPtr(1), ScheduledAt: now.Add(-time.Hour)}
	for _, b := range []*models.Booking{overdue, unpublished, upcoming, soon, gone} {
		seed(b)
	}

	require.NoError(t, e.svc.Recover(ctx))

	fireAt, ok := e.expiry.Pending("overdue")
	require.True(t, ok)
	assert.Equal(t, past, fireAt)
	e.expiry.fire(t, "overdue")
	assert.True(t, e.reload(t, "overdue").IsExpired)

	republished := e.reload(t, "unpublished")
	assert.NotNil(t, republished.NotificationsSentAt)
	assert.True(t, republished.IsLive())
	_, ok = e.expiry.Pending("unpublished")
	assert.True(t, ok)
	assert.Len(t, e.events(notify.EventBookingCreated, notify.ChannelAdmin), 1)

	fireAt, ok = e.reminders.Pending("upcoming")
	require.True(t, ok)
	assert.Equal(t, upcoming.ScheduledAt.Add(-30*time.Minute), fireAt)

	fireAt, ok = e.reminders.Pending("soon")
	require.True(t, ok)
	assert.Equal(t, now, fireAt)

	_, ok = e.reminders.Pending("gone")
	assert.False(t, ok)
}
