package lifecycle

import (
	"errors"
	"time"

	"volition/internal/desire"
	"volition/internal/logging"
)

// DecayTickNumber converts wall time into the current decay tick. Ticks are
// derived from absolute time so every scheduler run agrees on the sequence
// even across restarts.
func DecayTickNumber(now time.Time, interval time.Duration) int64 {
	if interval <= 0 {
		interval = time.Minute
	}
	return now.UnixNano() / int64(interval)
}

// Decay applies one decay tick to every active desire except those mid
// execution. A desire that already saw this tick is skipped, so overlapping
// runs never double-decay. Desires that fall below the floor are abandoned.
func (m *Manager) Decay(now time.Time) error {
	tick := DecayTickNumber(now, m.cfg.Strength.DecayInterval)

	active, err := m.store.ListActive()
	if err != nil {
		return err
	}

	for _, p := range active {
		id := p.ID
		err := m.withLock(id, func(d *desire.Desire) error {
			// An in-flight execution is not charged for elapsed time; the
			// desire resumes decaying once it reaches awaiting_review.
			if d.Status == desire.StatusExecuting || d.Status.IsTerminal() || d.DecayTick >= tick {
				return nil
			}

			before := d.Strength
			d.Strength = max(0, d.Strength-m.cfg.Strength.DecayRate)
			d.DecayTick = tick
			d.UpdatedAt = now.UTC()

			if d.Strength < m.cfg.Strength.MinStrength {
				return m.transition(d, desire.StatusAbandoned, "engine", "strength decayed below floor")
			}

			if err := m.store.Save(d); err != nil {
				return err
			}
			m.audit.Log(logging.AuditEvent{
				Event:    logging.AuditDecay,
				Category: string(logging.CategoryStrength),
				DesireID: d.ID,
				Success:  true,
				Details:  map[string]any{"before": before, "after": d.Strength, "tick": tick},
			})
			return nil
		})
		if errors.Is(err, desire.ErrDesireBusy) {
			// A busy desire catches up on the next tick.
			continue
		}
		if err != nil {
			m.log.Warn("Decay: %s: %v", id, err)
		}
	}
	return nil
}

// activationReady reports whether a pending desire's source-weighted
// strength clears the activation threshold.
func (m *Manager) activationReady(d *desire.Desire) bool {
	return d.EffectiveStrength() >= m.cfg.Strength.ActivationThreshold
}
