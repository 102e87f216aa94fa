package kinematic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVector3Lerp(t *testing.T) {
	a := Vector3{0, 0, 0}
	b := Vector3{10, 20, -30}

	assert.Equal(t, a, a.Lerp(b, 0))
	assert.Equal(t, b, a.Lerp(b, 1))
	assert.Equal(t, Vector3{5, 10, -15}, a.Lerp(b, 0.5))
}

func TestQuaternionNormalize(t *testing.T) {
	q := Quaternion{0, 2, 0, 0}.Normalize()
	assert.InDelta(t, 1.0, math.Sqrt(q.Dot(q)), 1e-12)

	assert.Equal(t, Identity(), Quaternion{}.Normalize())
}

func TestQuaternionSlerp(t *testing.T) {
	from := Identity()
	// 90 degree rotation about Y.
	to := Quaternion{0, math.Sin(math.Pi / 4), 0, math.Cos(math.Pi / 4)}

	atStart := from.Slerp(to, 0)
	for i := range atStart {
		assert.InDelta(t, from[i], atStart[i], 1e-9)
	}

	atEnd := from.Slerp(to, 1)
	for i := range atEnd {
		assert.InDelta(t, to[i], atEnd[i], 1e-9)
	}

	// Halfway should be a 45 degree rotation about Y.
	half := from.Slerp(to, 0.5)
	assert.InDelta(t, math.Sin(math.Pi/8), half[1], 1e-9)
	assert.InDelta(t, math.Cos(math.Pi/8), half[3], 1e-9)
}

func TestQuaternionSlerpShortestArc(t *testing.T) {
	from := Identity()
	// The negation represents the same rotation; slerp should not take the
	// long way around.
	to := Quaternion{0, 0, 0, -1}

	half := from.Slerp(to, 0.5)
	assert.InDelta(t, 1.0, math.Abs(half.Dot(from)), 1e-6)
}
