package lie

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SE3 is a rigid transform: a rotation and a translation 3-vector.
// Tangent vectors are ordered (angular, linear).
type SE3 struct {
	r *SO3
	t *mat.VecDense
}

// NewSE3 returns the identity transform.
func NewSE3() *SE3 {
	return &SE3{r: NewSO3(), t: mat.NewVecDense(3, nil)}
}

// NewSE3From returns the transform with rotation r and translation t.
// A nil rotation or translation defaults to identity/zero.
// It returns error if t is not a 3-vector.
func NewSE3From(r *SO3, t mat.Vector) (*SE3, error) {
	if r == nil {
		r = NewSO3()
	}
	if t == nil {
		t = mat.NewVecDense(3, nil)
	}
	if t.Len() != 3 {
		return nil, fmt.Errorf("invalid translation dimension: %d", t.Len())
	}

	return &SE3{r: r.Clone(), t: cloneVec(t)}, nil
}

// ExpSE3 is the closed form exponential map of SE3 at the tangent 6-vector
// v = (angular, linear). It panics if v is not a 6-vector.
func ExpSE3(v mat.Vector) *SE3 {
	if v.Len() != 6 {
		panic("lie: ExpSE3 of a non 6-vector")
	}
	w := mat.NewVecDense(3, []float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)})
	u := mat.NewVecDense(3, []float64{v.AtVec(3), v.AtVec(4), v.AtVec(5)})

	t := mat.NewVecDense(3, nil)
	t.MulVec(leftJacobianSO3(w), u)

	return &SE3{r: ExpSO3(w), t: t}
}

// Log is the logarithm map of SE3. The identity maps to the zero vector.
func (e *SE3) Log() *mat.VecDense {
	w := e.r.Log()

	u := mat.NewVecDense(3, nil)
	u.MulVec(invLeftJacobianSO3(w), e.t)

	return mat.NewVecDense(6, []float64{
		w.AtVec(0), w.AtVec(1), w.AtVec(2),
		u.AtVec(0), u.AtVec(1), u.AtVec(2),
	})
}

// Mul returns the composed transform e * o.
func (e *SE3) Mul(o *SE3) *SE3 {
	t := e.r.Rotate(o.t)
	t.AddVec(t, e.t)

	return &SE3{r: e.r.Mul(o.r), t: t}
}

// Inverse returns the inverse transform.
func (e *SE3) Inverse() *SE3 {
	ri := e.r.Inverse()
	t := ri.Rotate(e.t)
	t.ScaleVec(-1.0, t)

	return &SE3{r: ri, t: t}
}

// Matrix returns the 4x4 homogeneous matrix of e.
func (e *SE3) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(e.r.Matrix())
	for i := 0; i < 3; i++ {
		m.Set(i, 3, e.t.AtVec(i))
	}
	m.Set(3, 3, 1.0)

	return m
}

// Adjoint returns the 6x6 adjoint matrix of e mapping tangent vectors
// (angular, linear) between the two sides of conjugation:
// e * ExpSE3(v) * e^-1 == ExpSE3(Adjoint(e) * v).
func (e *SE3) Adjoint() *mat.Dense {
	rm := e.r.Matrix()

	ad := mat.NewDense(6, 6, nil)
	ad.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rm)
	ad.Slice(3, 6, 3, 6).(*mat.Dense).Copy(rm)

	tr := new(mat.Dense)
	tr.Mul(Skew(e.t), rm)
	ad.Slice(3, 6, 0, 3).(*mat.Dense).Copy(tr)

	return ad
}

// Transform applies the rigid motion of e to the point p.
// It panics if p is not a 3-vector.
func (e *SE3) Transform(p mat.Vector) *mat.VecDense {
	out := e.r.Rotate(p)
	out.AddVec(out, e.t)

	return out
}

// R returns the rotation of e.
func (e *SE3) R() *SO3 {
	return e.r.Clone()
}

// T returns the translation of e.
func (e *SE3) T() *mat.VecDense {
	return cloneVec(e.t)
}

// Clone returns a deep copy of e.
func (e *SE3) Clone() *SE3 {
	return &SE3{r: e.r.Clone(), t: cloneVec(e.t)}
}

// AdSE3 returns the 6x6 matrix of the small adjoint (ad) operator of the SE3
// tangent vector v, i.e. the matrix of the Lie bracket [v, .].
// It panics if v is not a 6-vector.
func AdSE3(v mat.Vector) *mat.Dense {
	if v.Len() != 6 {
		panic("lie: AdSE3 of a non 6-vector")
	}
	w := mat.NewVecDense(3, []float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)})
	u := mat.NewVecDense(3, []float64{v.AtVec(3), v.AtVec(4), v.AtVec(5)})

	ad := mat.NewDense(6, 6, nil)
	ad.Slice(0, 3, 0, 3).(*mat.Dense).Copy(Skew(w))
	ad.Slice(3, 6, 3, 6).(*mat.Dense).Copy(Skew(w))
	ad.Slice(3, 6, 0, 3).(*mat.Dense).Copy(Skew(u))

	return ad
}
