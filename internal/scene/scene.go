package scene

import (
	"math"
	"sort"
	"time"
)

const (
	// RingRadius is the distance of every avatar from the chamber centre
	RingRadius = 4.0
	// SpinPerFrame is the constant rotation added on every frame, in radians
	SpinPerFrame = 0.002

	IdleEmissive   = 0.1
	activeEmissive = 0.3
	pulseFrequency = 4.0
	pulseEmissive  = 0.2
	pulseScale     = 0.02
)

// Vec3 is a point in scene space. Y is up; the camera looks from +Z.
type Vec3 struct {
	X, Y, Z float64
}

// RingPositions spaces n avatars evenly on a horizontal circle. Slot i sits
// at angle 2πi/n.
func RingPositions(n int, radius float64) []Vec3 {
	if n <= 0 {
		return nil
	}
	positions := make([]Vec3, n)
	for i := range positions {
		angle := float64(i) / float64(n) * 2 * math.Pi
		positions[i] = Vec3{
			X: math.Cos(angle) * radius,
			Y: 0,
			Z: math.Sin(angle) * radius,
		}
	}
	return positions
}

// Arcs splits ring slots into the far arc (Z < 0) and the near arc, each
// ordered left to right. A flat renderer draws the far arc above the near one.
func Arcs(positions []Vec3) (far, near []int) {
	for i, p := range positions {
		if p.Z < -1e-9 {
			far = append(far, i)
		} else {
			near = append(near, i)
		}
	}
	byX := func(slots []int) {
		sort.SliceStable(slots, func(a, b int) bool {
			return positions[slots[a]].X < positions[slots[b]].X
		})
	}
	byX(far)
	byX(near)
	return far, near
}

// Avatar is the per-frame animation state of one persona
type Avatar struct {
	Rotation float64
	Scale    float64
	Emissive float64
}

// NewAvatar returns an avatar at rest
func NewAvatar() Avatar {
	return Avatar{Scale: 1, Emissive: IdleEmissive}
}

// Step advances one frame. t is seconds since the scene started. An active
// avatar (its persona is thinking) pulses in size and glow; an idle one
// only spins.
func (a *Avatar) Step(active bool, t float64) {
	a.Rotation = math.Mod(a.Rotation+SpinPerFrame, 2*math.Pi)
	if active {
		pulse := math.Sin(t * pulseFrequency)
		a.Scale = 1 + pulse*pulseScale
		a.Emissive = activeEmissive + pulse*pulseEmissive
		return
	}
	a.Scale = 1
	a.Emissive = IdleEmissive
}

// Clock reports seconds elapsed since it was started
type Clock struct {
	start time.Time
	now   func() time.Time
}

// NewClock starts a clock using now, or time.Now when nil
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{start: now(), now: now}
}

// Elapsed returns seconds since the clock started
func (c *Clock) Elapsed() float64 {
	return c.now().Sub(c.start).Seconds()
}
