package gesture

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// StandardGravity is the acceleration of gravity in m/s².
const StandardGravity = 9.80665

// Shake detector defaults.
const (
	DefaultShakeThreshold    = StandardGravity * 1.33
	DefaultShakeWindow       = 3 * time.Second
	DefaultMinSampleInterval = 20 * time.Millisecond
	DefaultMinShakes         = 1
	DefaultSampleBuffer      = 64

	// reversalsPerShake is the number of direction reversals making up one shake.
	reversalsPerShake = 8
)

// Sample is one accelerometer reading in m/s², gravity included on Z.
type Sample struct {
	X, Y, Z float64
	At      time.Time
}

// ShakeConfig configures a ShakeDetector.
type ShakeConfig struct {
	// Threshold is the minimum acceleration on an axis that counts as movement.
	Threshold float64
	// Window is how long a shake may take before it is abandoned.
	Window time.Duration
	// MinSampleInterval drops samples arriving faster than this.
	MinSampleInterval time.Duration
	// MinShakes is how many shakes are needed to fire.
	MinShakes int
	// Buffer is the capacity of the sample queue used by Submit.
	Buffer int
}

// DefaultShakeConfig returns the default detector configuration.
func DefaultShakeConfig() ShakeConfig {
	return ShakeConfig{
		Threshold:         DefaultShakeThreshold,
		Window:            DefaultShakeWindow,
		MinSampleInterval: DefaultMinSampleInterval,
		MinShakes:         DefaultMinShakes,
		Buffer:            DefaultSampleBuffer,
	}
}

// ShakeDetector recognizes a shake as a burst of strong acceleration
// reversals on any axis within a short window.
type ShakeDetector struct {
	cfg     ShakeConfig
	samples chan Sample

	mu        sync.Mutex
	last      time.Time
	lastShake time.Time
	reversals int

	// Last strong acceleration per axis.
	accX, accY, accZ float64

	detected atomic.Int64
	dropped  atomic.Int64
}

// NewShakeDetector creates a detector. Zero config fields take defaults.
func NewShakeDetector(cfg ShakeConfig) *ShakeDetector {
	def := DefaultShakeConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSampleInterval < 0 {
		cfg.MinSampleInterval = 0
	}
	if cfg.MinShakes <= 0 {
		cfg.MinShakes = def.MinShakes
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &ShakeDetector{
		cfg:     cfg,
		samples: make(chan Sample, cfg.Buffer),
	}
}

// Submit queues a sample for Run without blocking.
// It returns false when the queue is full and the sample was dropped.
func (d *ShakeDetector) Submit(s Sample) bool {
	select {
	case d.samples <- s:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Run feeds queued samples through Observe and fires on every shake.
func (d *ShakeDetector) Run(ctx context.Context, fire func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-d.samples:
			if d.Observe(s) {
				fire()
			}
		}
	}
}

// Observe processes one sample and reports whether it completed a shake.
func (d *ShakeDetector) Observe(s Sample) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.last.IsZero() && s.At.Sub(d.last) < d.cfg.MinSampleInterval {
		return false
	}
	d.last = s.At

	// A reversal after the window starts a new shake.
	if d.reversals > 0 && s.At.Sub(d.lastShake) > d.cfg.Window {
		d.reset()
	}

	ax, ay, az := s.X, s.Y, s.Z-StandardGravity
	d.track(&d.accX, ax, s.At)
	d.track(&d.accY, ay, s.At)
	d.track(&d.accZ, az, s.At)

	if d.reversals >= reversalsPerShake*d.cfg.MinShakes {
		d.reset()
		d.detected.Add(1)
		return true
	}
	return false
}

// Detected returns how many shakes were recognized.
func (d *ShakeDetector) Detected() int64 { return d.detected.Load() }

// Dropped returns how many submitted samples were dropped.
func (d *ShakeDetector) Dropped() int64 { return d.dropped.Load() }

// track counts a reversal when a strong acceleration points the other way
// from the previous strong one on the same axis.
func (d *ShakeDetector) track(prev *float64, a float64, at time.Time) {
	if math.Abs(a) < d.cfg.Threshold || a*(*prev) > 0 {
		return
	}
	*prev = a
	d.lastShake = at
	d.reversals++
}

func (d *ShakeDetector) reset() {
	d.reversals = 0
	d.accX, d.accY, d.accZ = 0, 0, 0
}
