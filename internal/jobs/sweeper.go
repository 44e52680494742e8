package jobs

import (
	"context"
	"slices"
	"time"
)

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := m.sweep(time.Now().UTC()); evicted > 0 {
				m.logger.Info("swept finished jobs", "evicted", evicted)
			}
		}
	}
}

// sweep evicts terminal records past the TTL, then trims the remaining
// terminal set down to MaxJobRecords, oldest finished first. Queued and
// running records are never touched. A reader holding a stale id simply
// sees ErrJobNotFound afterwards.
func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, record := range m.jobs {
		snap := record.Snapshot()
		if snap.Status.Terminal() && snap.FinishedAt != nil && now.Sub(*snap.FinishedAt) > m.opts.FinishedTTL {
			delete(m.jobs, id)
			evicted++
		}
	}

	type finished struct {
		id string
		at time.Time
	}
	var terminal []finished
	for id, record := range m.jobs {
		snap := record.Snapshot()
		if !snap.Status.Terminal() {
			continue
		}
		at := snap.CreatedAt
		if snap.FinishedAt != nil {
			at = *snap.FinishedAt
		}
		terminal = append(terminal, finished{id: id, at: at})
	}
	overflow := len(terminal) - m.opts.MaxJobRecords
	if overflow > 0 {
		slices.SortFunc(terminal, func(a, b finished) int {
			return a.at.Compare(b.at)
		})
		for _, f := range terminal[:overflow] {
			delete(m.jobs, f.id)
			evicted++
		}
	}
	return evicted
}
