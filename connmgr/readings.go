package connmgr

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/bledb"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/profile"
)

// handleNotification decodes one notification payload and publishes the
// resulting reading. Malformed payloads are logged and dropped; the
// connection is unaffected.
func (m *Manager) handleNotification(sess *session, gen uint64, pc profile.CharacteristicPlan, data []byte) {
	m.mu.Lock()
	live := sess.state == StateConnected || (sess.gen == gen && !sess.resolved)
	addr := sess.device.Address
	m.mu.Unlock()
	if !live {
		return
	}

	now := time.Now()
	switch pc.UUID {
	case profile.ChrBloodPressureMeasurement:
		r, err := profile.DecodeBloodPressure(data)
		if err != nil {
			m.logDecodeError(addr, pc.UUID, err)
			return
		}
		m.logger.WithFields(logrus.Fields{
			"address":   addr,
			"systolic":  r.Systolic,
			"diastolic": r.Diastolic,
			"unit":      r.Unit,
		}).Info("Blood pressure measurement")
		m.publish(events.BloodPressure{Address: addr, Reading: r, At: now})

	case profile.ChrAccel:
		r, err := profile.DecodeImuSample(data)
		if err != nil {
			m.logDecodeError(addr, pc.UUID, err)
			return
		}
		m.publish(events.SensorUpdate{Address: addr, Imu: &r, At: now})

	case profile.ChrDigital:
		r, err := profile.DecodeButton(data)
		if err != nil {
			m.logDecodeError(addr, pc.UUID, err)
			return
		}
		// Report edges only, the characteristic repeats level state.
		m.mu.Lock()
		changed := sess.lastButton == nil || *sess.lastButton != r.Pressed
		pressed := r.Pressed
		sess.lastButton = &pressed
		m.mu.Unlock()
		if !changed {
			return
		}
		m.publish(events.ButtonPress{Address: addr, Pressed: r.Pressed, At: now})

	case profile.ChrRSCMeasurement:
		r, err := profile.DecodeRSC(data)
		if err != nil {
			m.logDecodeError(addr, pc.UUID, err)
			return
		}
		m.ingestActivity(addr, r, now)

	default:
		m.logger.WithFields(logrus.Fields{
			"address": addr,
			"char":    charLabel(pc.UUID),
		}).Debug("Notification on unhandled characteristic")
	}
}

// ingestActivity folds a cadence reading into the daily activity aggregate
// and publishes the updated per-user totals.
func (m *Manager) ingestActivity(addr device.Address, r profile.CadenceReading, now time.Time) {
	if m.agg == nil {
		return
	}
	snap := aggregate.ActivitySnapshot{}
	if r.DistanceM != nil {
		snap.DistanceM = *r.DistanceM
	}
	activity := m.agg.Ingest(addr, snap, now)
	m.logger.WithFields(logrus.Fields{
		"address": addr,
		"user":    activity.UserID,
		"date":    activity.Date,
		"speedMs": r.SpeedMs,
		"cadence": r.CadenceSpm,
	}).Debug("Activity updated")
	m.publish(events.ActivityUpdated{Activity: activity, At: now})
}

// pollLoop reads non-notifying characteristics on a fixed cadence until the
// session disconnects.
func (m *Manager) pollLoop(ctx context.Context, sess *session, gen uint64, client device.Client, polled []profile.CharacteristicPlan) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.pollOnce(sess, gen, client, polled); err != nil {
				m.logger.WithError(err).WithField("address", sess.device.Address).
					Warn("Poll cycle failed")
			}
		}
	}
}

// pollOnce reads each polled characteristic once and publishes the
// assembled environmental reading. Returns the first read error; decode
// errors skip the value but do not fail the cycle.
func (m *Manager) pollOnce(sess *session, gen uint64, client device.Client, polled []profile.CharacteristicPlan) error {
	addr := sess.device.Address
	var env profile.EnvironmentalReading
	got := false
	for _, pc := range polled {
		data, err := device.ReadWithTimeout(client, pc.Service, pc.UUID, m.opts.OpTimeout)
		if err != nil {
			return err
		}
		switch pc.UUID {
		case profile.ChrTemperature:
			v, err := profile.DecodeTemperature(data)
			if err != nil {
				m.logDecodeError(addr, pc.UUID, err)
				continue
			}
			env.TemperatureC = v
			got = true
		case profile.ChrHumidity:
			v, err := profile.DecodeHumidity(data)
			if err != nil {
				m.logDecodeError(addr, pc.UUID, err)
				continue
			}
			env.HumidityPct = v
			got = true
		case profile.ChrIlluminance:
			v, err := profile.DecodeIlluminance(data)
			if err != nil {
				m.logDecodeError(addr, pc.UUID, err)
				continue
			}
			env.LightLux = v
			got = true
		}
	}
	if !got {
		return nil
	}
	m.mu.Lock()
	live := sess.state == StateConnected || (sess.gen == gen && !sess.resolved)
	m.mu.Unlock()
	if !live {
		return nil
	}
	m.publish(events.SensorUpdate{Address: addr, Environmental: &env, At: time.Now()})
	return nil
}

func (m *Manager) logDecodeError(addr device.Address, uuid string, err error) {
	m.logger.WithError(err).WithFields(logrus.Fields{
		"address": addr,
		"char":    charLabel(uuid),
	}).Warn("Dropping malformed payload")
}

// charLabel renders a characteristic UUID with its known name for logs.
func charLabel(uuid string) string {
	if name := bledb.LookupCharacteristic(uuid); name != "" {
		return uuid + " (" + name + ")"
	}
	return uuid
}
