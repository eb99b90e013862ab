package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVehicleCategory(t *testing.T) {
	cases := map[string]VehicleCategory{
		"sedan":        VehicleSedan,
		"  Sedan ":     VehicleSedan,
		"седан":        VehicleSedan,
		"Limousine":    VehicleSedan,
		"PKW":          VehicleSedan,
		"Минивэн":      VehicleMinivan,
		"минивен":      VehicleMinivan,
		"van":          VehicleMinivan,
		"Микроавтобус": VehicleMinibus,
		"Kleinbus":     VehicleMinibus,
		"sprinter":     VehicleMinibus,
	}
	for label, want := range cases {
		got, err := ParseVehicleCategory(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}

	_, err := ParseVehicleCategory("helicopter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[sedan minivan minibus]")
}

func TestVehicleCategoryLabel(t *testing.T) {
	assert.Equal(t, "Микроавтобус", VehicleMinibus.Label("ru"))
	assert.Equal(t, "Minibus", VehicleMinibus.Label("fr"))
	assert.Equal(t, "truck", VehicleCategory("truck").Label("ru"))

	for _, c := range Categories {
		back, err := ParseVehicleCategory(c.Label("ru"))
		require.NoError(t, err)
		assert.Equal(t, c, back)
		assert.True(t, c.Valid())
	}
}

func TestBookingStatusNext(t *testing.T) {
	chain := []BookingStatus{
		BookingStatusAccepted,
		BookingStatusStarted,
		BookingStatusPickedUp,
		BookingStatusDroppedOff,
		BookingStatusCompleted,
	}
	for i := 0; i < len(chain)-1; i++ {
		next, ok := chain[i].Next()
		require.True(t, ok)
		assert.Equal(t, chain[i+1], next)
	}

	for _, s := range []BookingStatus{BookingStatusPending, BookingStatusCompleted, BookingStatusRejected, BookingStatusCancelled} {
		_, ok := s.Next()
		assert.False(t, ok, s)
	}
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.False(t, BookingStatusAccepted.IsTerminal())
}

func liveBooking() *Booking {
	now := time.Now()
	exp := now.Add(5 * time.Minute)
	return &Booking{
		ID:                  "b1",
		Status:              BookingStatusPending,
		AssignmentType:      AssignmentAuto,
		NotificationsSentAt: &now,
		ExpiresAt:           &exp,
	}
}

func TestBookingIsLive(t *testing.T) {
	b := liveBooking()
	assert.True(t, b.IsLive())
	assert.True(t, b.IsExpiryEligible())

	unpublished := liveBooking()
	unpublished.NotificationsSentAt = nil
	assert.False(t, unpublished.IsLive())

	expired := liveBooking()
	expired.IsExpired = true
	assert.False(t, expired.IsLive())

	admin := liveBooking()
	admin.AssignmentType = AssignmentAdmin
	assert.False(t, admin.IsLive())

	assigned := liveBooking()
	id := uint(3)
	assigned.DriverID = &id
	assert.False(t, assigned.IsLive())
	assert.True(t, assigned.AssignedTo(3))
	assert.False(t, assigned.AssignedTo(4))
}

func TestBookingClone(t *testing.T) {
	b := liveBooking()
	id := uint(7)
	b.DriverID = &id
	b.RejectedBy = append(b.RejectedBy, 1)

	c := b.Clone()
	*c.DriverID = 8
	c.RejectedBy[0] = 2
	c.RejectedBy = append(c.RejectedBy, 3)

	assert.Equal(t, uint(7), *b.DriverID)
	assert.Equal(t, int64(1), b.RejectedBy[0])
	assert.Len(t, b.RejectedBy, 1)
	assert.True(t, b.RejectedByDriver(1))
	assert.False(t, b.RejectedByDriver(2))
}

func TestUserVehicleType(t *testing.T) {
	u := User{ID: 1, FirstName: "Азамат", LastName: "Сериков"}
	assert.Equal(t, "Азамат Сериков", u.FullName())
	_, ok := u.VehicleType()
	assert.False(t, ok)

	u.DriverDocuments = &DriverDocuments{VehicleType: VehicleMinivan, Status: DocumentStatusPending}
	_, ok = u.VehicleType()
	assert.False(t, ok)

	u.DriverDocuments.Status = DocumentStatusApproved
	v, ok := u.VehicleType()
	assert.True(t, ok)
	assert.Equal(t, VehicleMinivan, v)
}
