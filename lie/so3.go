package lie

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// SO3 is a rotation stored as a unit quaternion.
// The quaternion is re-normalized after every operation that mutates it so the
// rotation matrix view is orthonormal to machine precision.
type SO3 struct {
	q quat.Number
}

// NewSO3 returns the identity rotation.
func NewSO3() *SO3 {
	return &SO3{q: quat.Number{Real: 1}}
}

// NewSO3FromQuaternion returns the rotation given by q, normalized.
// It returns error if q has (near) zero norm or non-finite entries.
func NewSO3FromQuaternion(q quat.Number) (*SO3, error) {
	n := quat.Abs(q)
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 1e-12 {
		return nil, fmt.Errorf("invalid quaternion: %v", q)
	}

	return &SO3{q: quat.Scale(1.0/n, q)}, nil
}

// NewSO3FromMatrix returns the rotation given by the 3x3 orthonormal matrix m.
// It returns error if m is not 3x3 or not orthonormal.
func NewSO3FromMatrix(m mat.Matrix) (*SO3, error) {
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		return nil, fmt.Errorf("invalid rotation matrix dimensions: [%d x %d]", rows, cols)
	}

	ortho := new(mat.Dense)
	ortho.Mul(m.T(), m)
	ortho.Sub(ortho, eye3())
	if mat.Norm(ortho, 2) > 1e-6 {
		return nil, fmt.Errorf("rotation matrix is not orthonormal")
	}

	// Shepperd's method: pick the largest of the four quaternion components
	// to keep the conversion well conditioned.
	t := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	var q quat.Number
	switch {
	case t > 0:
		s := math.Sqrt(t+1.0) * 2.0
		q = quat.Number{
			Real: 0.25 * s,
			Imag: (m.At(2, 1) - m.At(1, 2)) / s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) / s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) / s,
		}
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(0, 0)-m.At(1, 1)-m.At(2, 2)) * 2.0
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m.At(1, 1) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(1, 1)-m.At(0, 0)-m.At(2, 2)) * 2.0
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := math.Sqrt(1.0+m.At(2, 2)-m.At(0, 0)-m.At(1, 1)) * 2.0
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}

	return NewSO3FromQuaternion(q)
}

// ExpSO3 is the closed form exponential map of SO3: it maps the tangent
// 3-vector v (axis-angle) to a rotation. Small angles fall back to the Taylor
// expansion of sin(theta/2)/theta. It panics if v is not a 3-vector.
func ExpSO3(v mat.Vector) *SO3 {
	if v.Len() != 3 {
		panic("lie: ExpSO3 of a non 3-vector")
	}
	theta := mat.Norm(v, 2)

	var s float64
	if theta < angEps {
		s = 0.5 - theta*theta/48.0
	} else {
		s = math.Sin(0.5*theta) / theta
	}

	q := quat.Number{
		Real: math.Cos(0.5 * theta),
		Imag: s * v.AtVec(0),
		Jmag: s * v.AtVec(1),
		Kmag: s * v.AtVec(2),
	}

	return &SO3{q: quat.Scale(1.0/quat.Abs(q), q)}
}

// Log is the logarithm map of SO3: it returns the axis-angle tangent vector of
// the rotation. The identity (and any numerically singular near-identity
// configuration) maps to the zero vector.
func (r *SO3) Log() *mat.VecDense {
	q := r.q
	// the double cover maps q and -q to the same rotation; pick the
	// representative on the identity side so the angle stays in [0, pi]
	if q.Real < 0 {
		q = quat.Scale(-1.0, q)
	}

	vn := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if vn < 1e-12 {
		return mat.NewVecDense(3, []float64{2 * q.Imag, 2 * q.Jmag, 2 * q.Kmag})
	}

	theta := 2.0 * math.Atan2(vn, q.Real)

	return mat.NewVecDense(3, []float64{
		theta / vn * q.Imag,
		theta / vn * q.Jmag,
		theta / vn * q.Kmag,
	})
}

// Mul returns the composed rotation r * o.
func (r *SO3) Mul(o *SO3) *SO3 {
	q := quat.Mul(r.q, o.q)

	return &SO3{q: quat.Scale(1.0/quat.Abs(q), q)}
}

// Inverse returns the inverse rotation.
func (r *SO3) Inverse() *SO3 {
	return &SO3{q: quat.Conj(r.q)}
}

// Matrix returns the 3x3 rotation matrix of r.
func (r *SO3) Matrix() *mat.Dense {
	w, x, y, z := r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag

	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Quaternion returns the unit quaternion of r.
func (r *SO3) Quaternion() quat.Number {
	return r.q
}

// Rotate returns the 3-vector v rotated by r.
// It panics if v is not a 3-vector.
func (r *SO3) Rotate(v mat.Vector) *mat.VecDense {
	if v.Len() != 3 {
		panic("lie: Rotate of a non 3-vector")
	}
	out := mat.NewVecDense(3, nil)
	out.MulVec(r.Matrix(), v)

	return out
}

// RotateInv returns the 3-vector v rotated by the inverse of r.
func (r *SO3) RotateInv(v mat.Vector) *mat.VecDense {
	return r.Inverse().Rotate(v)
}

// Clone returns a deep copy of r.
func (r *SO3) Clone() *SO3 {
	return &SO3{q: r.q}
}
