package uiloop

import (
	"time"
)

// Schedule waits delay, then calls step on the loop once per frame with the
// linear progress of duration in [0, 1], finishing with step(1) followed by
// onComplete. Either callback may be nil.
//
// There is no cancellation. Owners that need to supersede a running schedule
// guard their callbacks with their own generation counter.
func (l *Loop) Schedule(delay, duration time.Duration, step func(progress float64), onComplete func()) bool {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return false
	}
	l.timers.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.timers.Done()

		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-l.stopCh:
				t.Stop()
				return
			}
		}

		if duration > 0 && step != nil {
			start := time.Now()
			ticker := time.NewTicker(l.frame)
			defer ticker.Stop()

		frames:
			for {
				select {
				case <-l.stopCh:
					return
				case now := <-ticker.C:
					elapsed := now.Sub(start)
					if elapsed >= duration {
						break frames
					}
					progress := float64(elapsed) / float64(duration)
					l.Post(func() { step(progress) })
				}
			}
		} else if duration > 0 {
			t := time.NewTimer(duration)
			select {
			case <-t.C:
			case <-l.stopCh:
				t.Stop()
				return
			}
		}

		l.Post(func() {
			if step != nil {
				step(1)
			}
			if onComplete != nil {
				onComplete()
			}
		})
	}()
	return true
}

// After runs fn on the loop once delay has elapsed.
func (l *Loop) After(delay time.Duration, fn func()) bool {
	return l.Schedule(delay, 0, nil, fn)
}

// Lerp interpolates between from and to by progress.
func Lerp(from, to, progress float64) float64 {
	if progress <= 0 {
		return from
	}
	if progress >= 1 {
		return to
	}
	return from + (to-from)*progress
}
