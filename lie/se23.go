package lie

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SE23 is an extended pose: a rotation with velocity and position 3-vectors,
// the 5x5 homogeneous matrix analogue used for gravity compensated inertial
// kinematics. Tangent vectors are ordered (angular, velocity, position).
type SE23 struct {
	r *SO3
	v *mat.VecDense
	p *mat.VecDense
}

// NewSE23 returns the identity extended pose.
func NewSE23() *SE23 {
	return &SE23{r: NewSO3(), v: mat.NewVecDense(3, nil), p: mat.NewVecDense(3, nil)}
}

// NewSE23From returns the extended pose with rotation r, velocity v and
// position p. Nil arguments default to identity/zero.
// It returns error if v or p is not a 3-vector.
func NewSE23From(r *SO3, v, p mat.Vector) (*SE23, error) {
	if r == nil {
		r = NewSO3()
	}
	if v == nil {
		v = mat.NewVecDense(3, nil)
	}
	if p == nil {
		p = mat.NewVecDense(3, nil)
	}
	if v.Len() != 3 || p.Len() != 3 {
		return nil, fmt.Errorf("invalid velocity/position dimensions: [%d, %d]", v.Len(), p.Len())
	}

	return &SE23{r: r.Clone(), v: cloneVec(v), p: cloneVec(p)}, nil
}

// ExpSE23 is the closed form exponential map of SE23 at the tangent 9-vector
// u = (angular, velocity, position). It panics if u is not a 9-vector.
func ExpSE23(u mat.Vector) *SE23 {
	if u.Len() != 9 {
		panic("lie: ExpSE23 of a non 9-vector")
	}
	w := mat.NewVecDense(3, []float64{u.AtVec(0), u.AtVec(1), u.AtVec(2)})
	a := mat.NewVecDense(3, []float64{u.AtVec(3), u.AtVec(4), u.AtVec(5)})
	n := mat.NewVecDense(3, []float64{u.AtVec(6), u.AtVec(7), u.AtVec(8)})

	jac := leftJacobianSO3(w)
	v := mat.NewVecDense(3, nil)
	v.MulVec(jac, a)
	p := mat.NewVecDense(3, nil)
	p.MulVec(jac, n)

	return &SE23{r: ExpSO3(w), v: v, p: p}
}

// Log is the logarithm map of SE23. The identity maps to the zero vector.
func (x *SE23) Log() *mat.VecDense {
	w := x.r.Log()

	inv := invLeftJacobianSO3(w)
	a := mat.NewVecDense(3, nil)
	a.MulVec(inv, x.v)
	n := mat.NewVecDense(3, nil)
	n.MulVec(inv, x.p)

	return mat.NewVecDense(9, []float64{
		w.AtVec(0), w.AtVec(1), w.AtVec(2),
		a.AtVec(0), a.AtVec(1), a.AtVec(2),
		n.AtVec(0), n.AtVec(1), n.AtVec(2),
	})
}

// Mul returns the composed extended pose x * o.
func (x *SE23) Mul(o *SE23) *SE23 {
	v := x.r.Rotate(o.v)
	v.AddVec(v, x.v)
	p := x.r.Rotate(o.p)
	p.AddVec(p, x.p)

	return &SE23{r: x.r.Mul(o.r), v: v, p: p}
}

// Inverse returns the inverse extended pose.
func (x *SE23) Inverse() *SE23 {
	ri := x.r.Inverse()
	v := ri.Rotate(x.v)
	v.ScaleVec(-1.0, v)
	p := ri.Rotate(x.p)
	p.ScaleVec(-1.0, p)

	return &SE23{r: ri, v: v, p: p}
}

// Matrix returns the 5x5 homogeneous matrix of x: the rotation block with the
// velocity and position columns appended.
func (x *SE23) Matrix() *mat.Dense {
	m := mat.NewDense(5, 5, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(x.r.Matrix())
	for i := 0; i < 3; i++ {
		m.Set(i, 3, x.v.AtVec(i))
		m.Set(i, 4, x.p.AtVec(i))
	}
	m.Set(3, 3, 1.0)
	m.Set(4, 4, 1.0)

	return m
}

// Adjoint returns the 9x9 adjoint matrix of x:
// x * ExpSE23(u) * x^-1 == ExpSE23(Adjoint(x) * u).
func (x *SE23) Adjoint() *mat.Dense {
	rm := x.r.Matrix()

	ad := mat.NewDense(9, 9, nil)
	ad.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rm)
	ad.Slice(3, 6, 3, 6).(*mat.Dense).Copy(rm)
	ad.Slice(6, 9, 6, 9).(*mat.Dense).Copy(rm)

	tmp := new(mat.Dense)
	tmp.Mul(Skew(x.v), rm)
	ad.Slice(3, 6, 0, 3).(*mat.Dense).Copy(tmp)
	tmp.Mul(Skew(x.p), rm)
	ad.Slice(6, 9, 0, 3).(*mat.Dense).Copy(tmp)

	return ad
}

// B is the homomorphic SE3 projection of x built from its rotation and
// velocity. It carries the part of the extended pose that acts on the
// gyroscope/accelerometer bias.
func (x *SE23) B() *SE3 {
	return &SE3{r: x.r.Clone(), t: cloneVec(x.v)}
}

// C is the homomorphic SE3 projection of x built from its rotation and
// position: the rigid pose acting on extrinsics and feature anchors.
func (x *SE23) C() *SE3 {
	return &SE3{r: x.r.Clone(), t: cloneVec(x.p)}
}

// R returns the rotation of x.
func (x *SE23) R() *SO3 {
	return x.r.Clone()
}

// V returns the velocity of x.
func (x *SE23) V() *mat.VecDense {
	return cloneVec(x.v)
}

// P returns the position of x.
func (x *SE23) P() *mat.VecDense {
	return cloneVec(x.p)
}

// Clone returns a deep copy of x.
func (x *SE23) Clone() *SE23 {
	return &SE23{r: x.r.Clone(), v: cloneVec(x.v), p: cloneVec(x.p)}
}
