package cart

import (
	"context"
	"time"
)

// scheduleReconcileLocked arms a deferred re-fetch of the authoritative
// remote cart after an optimistic mutation. Each new mutation cancels the
// pending fetch and schedules a fresh one, so a burst of edits settles with a
// single round trip. The generation counter guards against a stale fetch
// overwriting newer local state.
func (s *Store) scheduleReconcileLocked(ctx context.Context) {
	if s.remote == nil {
		return
	}
	s.cancelReconcileLocked()

	s.reconcileGen++
	gen := s.reconcileGen
	uid := s.userID
	taskID := s.newID()
	base := context.WithoutCancel(ctx)

	s.wg.Add(1)
	s.reconcileTimer = time.AfterFunc(s.reconcileDelay, func() {
		defer s.wg.Done()
		s.runReconcile(base, uid, gen, taskID)
	})
}

func (s *Store) cancelReconcileLocked() {
	if s.reconcileTimer == nil {
		return
	}
	if s.reconcileTimer.Stop() {
		// Timer cancelled before firing, so its callback never runs.
		s.wg.Done()
	}
	s.reconcileTimer = nil
}

// runReconcile fetches the remote cart and, if no newer mutation superseded
// this task and the identity is unchanged, replaces the local line set with
// the fetched one. Fetch failures leave the optimistic state in place; the
// next mutation schedules another attempt.
func (s *Store) runReconcile(ctx context.Context, userID string, gen uint64, taskID string) {
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	cores, err := s.remote.GetCart(rctx, userID)
	cancel()
	if err != nil {
		s.logger(ctx, "cart.reconcile_failed", map[string]any{
			"taskID": taskID,
			"userID": userID,
			"error":  err.Error(),
		})
		return
	}

	lines := s.resolveLines(ctx, cores)

	s.mu.Lock()
	if gen == s.reconcileGen && s.userID == userID {
		s.lines = lines
		s.touchLocked()
	}
	s.mu.Unlock()
}
