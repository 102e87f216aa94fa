package kinematic

// Vector and quaternion math for converging remote entity transforms
// toward their latest reported targets.

import (
	"math"
)

// Vector3 is an x, y, z position. It marshals to a 3-element JSON array.
type Vector3 [3]float64

// Add returns the component-wise sum of v and o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns the component-wise difference of v and o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v[0] * s, v[1] * s, v[2] * s}
}

// Length returns the euclidean length of v.
func (v Vector3) Length() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Lerp returns the linear interpolation between v and target at factor t,
// where t=0 returns v and t=1 returns target.
func (v Vector3) Lerp(target Vector3, t float64) Vector3 {
	return v.Add(target.Sub(v).Scale(t))
}

// Quaternion is an x, y, z, w rotation. It marshals to a 4-element JSON array.
type Quaternion [4]float64

// Identity is the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

// Dot returns the dot product of q and o.
func (q Quaternion) Dot(o Quaternion) float64 {
	return q[0]*o[0] + q[1]*o[1] + q[2]*o[2] + q[3]*o[3]
}

// Normalize returns q scaled to unit length. The zero quaternion
// normalizes to the identity.
func (q Quaternion) Normalize() Quaternion {
	length := math.Sqrt(q.Dot(q))
	if length == 0 {
		return Identity()
	}
	return Quaternion{q[0] / length, q[1] / length, q[2] / length, q[3] / length}
}

// Slerp returns the spherical interpolation between q and target at factor t,
// taking the shortest arc. Nearly-parallel inputs fall back to a normalized
// linear interpolation to avoid division by a vanishing sine.
func (q Quaternion) Slerp(target Quaternion, t float64) Quaternion {
	dot := q.Dot(target)
	if dot < 0 {
		target = Quaternion{-target[0], -target[1], -target[2], -target[3]}
		dot = -dot
	}

	if dot > 0.9995 {
		return Quaternion{
			q[0] + (target[0]-q[0])*t,
			q[1] + (target[1]-q[1])*t,
			q[2] + (target[2]-q[2])*t,
			q[3] + (target[3]-q[3])*t,
		}.Normalize()
	}

	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta0 := math.Sin(theta0)
	s0 := math.Sin(theta0-theta) / sinTheta0
	s1 := math.Sin(theta) / sinTheta0

	return Quaternion{
		q[0]*s0 + target[0]*s1,
		q[1]*s0 + target[1]*s1,
		q[2]*s0 + target[2]*s1,
		q[3]*s0 + target[3]*s1,
	}
}
