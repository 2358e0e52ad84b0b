package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/testutils"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
	bus   *events.Bus
}

func (suite *StoreTestSuite) SetupTest() {
	s, err := New(testutils.QuietLogger(), filepath.Join(suite.T().TempDir(), "test.db"))
	suite.Require().NoError(err)
	suite.store = s
	suite.bus = events.NewBus(testutils.QuietLogger())
	s.Attach(suite.bus)
}

func (suite *StoreTestSuite) TearDownTest() {
	suite.store.Close()
}

func (suite *StoreTestSuite) TestBusEventsArePersisted() {
	addr := device.Address("AABBCCDDEE01")
	at := time.Now()
	suite.bus.Publish(events.BloodPressure{
		Address: addr,
		Reading: profile.BloodPressureReading{Systolic: 120, Diastolic: 80, Unit: profile.UnitMmHg},
		At:      at,
	})
	env := profile.EnvironmentalReading{TemperatureC: 22.5, HumidityPct: 45.5, LightLux: 300}
	suite.bus.Publish(events.SensorUpdate{Address: addr, Environmental: &env, At: at.Add(time.Second)})
	suite.bus.Publish(events.ButtonPress{Address: addr, Pressed: true, At: at.Add(2 * time.Second)})
	// Connection chatter is not a reading.
	suite.bus.Publish(events.ConnectionStatus{Address: addr, Status: events.StatusConnected})

	readings, err := suite.store.RecentReadings(addr, 10)
	suite.Require().NoError(err)
	suite.Require().Len(readings, 3)
	// Newest first.
	suite.Equal("button", readings[0].Kind)
	suite.Equal("environmental", readings[1].Kind)
	suite.Equal("blood_pressure", readings[2].Kind)
	suite.Contains(readings[2].Payload, "120")
}

func (suite *StoreTestSuite) TestActivityUpsert() {
	at := time.Now()
	activity := aggregate.DailyActivity{
		UserID:                  "alice",
		Date:                    "2026-08-31",
		Steps:                   5000,
		CaloriesBurned:          1800,
		DistanceMiles:           2.5,
		ContributingDeviceCount: 1,
	}
	suite.Require().NoError(suite.store.SaveActivity(activity, at))

	activity.Steps = 7000
	activity.ContributingDeviceCount = 2
	suite.Require().NoError(suite.store.SaveActivity(activity, at.Add(time.Minute)))

	got, err := suite.store.Activity("alice", "2026-08-31")
	suite.Require().NoError(err)
	suite.Equal(7000, got.Steps)
	suite.Equal(1800, got.CaloriesBurned)
	suite.Equal(2, got.ContributingDeviceCount)
	suite.InDelta(2.5, got.DistanceMiles, 0.001)

	_, err = suite.store.Activity("bob", "2026-08-31")
	suite.Error(err)
}

func (suite *StoreTestSuite) TestActivityUpdatedEventPersists() {
	suite.bus.Publish(events.ActivityUpdated{
		Activity: aggregate.DailyActivity{UserID: "alice", Date: "2026-08-31", Steps: 1234},
		At:       time.Now(),
	})

	got, err := suite.store.Activity("alice", "2026-08-31")
	suite.Require().NoError(err)
	suite.Equal(1234, got.Steps)
}

func (suite *StoreTestSuite) TestRecentReadingsLimit() {
	addr := device.Address("AABBCCDDEE02")
	base := time.Now()
	for i := 0; i < 5; i++ {
		suite.Require().NoError(suite.store.saveReading(addr, "button",
			map[string]bool{"pressed": i%2 == 0}, base.Add(time.Duration(i)*time.Second)))
	}
	readings, err := suite.store.RecentReadings(addr, 3)
	suite.Require().NoError(err)
	suite.Len(readings, 3)

	other, err := suite.store.RecentReadings(device.Address("AABBCCDDEE99"), 3)
	suite.Require().NoError(err)
	suite.Empty(other)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
