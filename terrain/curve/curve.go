// Package curve implements keyframed curves used to shape normalised heights
// before they are scaled into world space.
package curve

import (
	"slices"
)

// Key is a single keyframe of a Curve. InTangent and OutTangent are the slopes
// of the curve when arriving at and leaving the key.
type Key struct {
	Time, Value           float64
	InTangent, OutTangent float64
}

// Curve is a piecewise cubic Hermite curve through a set of keys. Outside the
// range of its keys, a Curve holds the value of the nearest key. A Curve is
// immutable and safe for concurrent use.
type Curve struct {
	keys []Key
}

// New creates a Curve through the keys passed. Keys are sorted by time; keys
// with a duplicate time replace earlier ones. A Curve without keys evaluates
// to 0 everywhere.
func New(keys ...Key) Curve {
	k := slices.Clone(keys)
	slices.SortStableFunc(k, func(a, b Key) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	out := k[:0]
	for _, key := range k {
		if len(out) > 0 && out[len(out)-1].Time == key.Time {
			out[len(out)-1] = key
			continue
		}
		out = append(out, key)
	}
	return Curve{keys: out}
}

// Linear returns the identity curve on [0, 1].
func Linear() Curve {
	return New(Key{Time: 0, Value: 0, OutTangent: 1}, Key{Time: 1, Value: 1, InTangent: 1})
}

// EaseIn returns a curve on [0, 1] that stays flat near 0 and steepens
// towards 1, which keeps low lying terrain such as water level flat.
func EaseIn() Curve {
	return New(Key{Time: 0, Value: 0}, Key{Time: 1, Value: 1, InTangent: 2})
}

// Keys returns a copy of the keys of the curve.
func (c Curve) Keys() []Key {
	return slices.Clone(c.keys)
}

// Evaluate returns the value of the curve at time t.
func (c Curve) Evaluate(t float64) float64 {
	n := len(c.keys)
	switch {
	case n == 0:
		return 0
	case t <= c.keys[0].Time:
		return c.keys[0].Value
	case t >= c.keys[n-1].Time:
		return c.keys[n-1].Value
	}
	i, _ := slices.BinarySearchFunc(c.keys, t, func(k Key, t float64) int {
		switch {
		case k.Time < t:
			return -1
		case k.Time > t:
			return 1
		}
		return 0
	})
	if c.keys[i].Time == t {
		return c.keys[i].Value
	}
	a, b := c.keys[i-1], c.keys[i]
	dt := b.Time - a.Time
	u := (t - a.Time) / dt
	u2, u3 := u*u, u*u*u

	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2
	return h00*a.Value + h10*dt*a.OutTangent + h01*b.Value + h11*dt*b.InTangent
}
