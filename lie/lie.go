package lie

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// angEps is the rotation angle below which closed form coefficients are
// replaced by their Taylor expansions to avoid division by near-zero.
const angEps = 1e-6

// Skew returns the 3x3 antisymmetric matrix generator of the 3-vector v,
// i.e. Skew(v)*u == v x u for any 3-vector u.
// It panics if v is not a 3-vector.
func Skew(v mat.Vector) *mat.Dense {
	if v.Len() != 3 {
		panic("lie: Skew of a non 3-vector")
	}
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)

	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// Vee is the inverse of Skew: it extracts the 3-vector of an antisymmetric
// 3x3 matrix. It panics if m is not 3x3.
func Vee(m mat.Matrix) *mat.VecDense {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		panic("lie: Vee of a non 3x3 matrix")
	}

	return mat.NewVecDense(3, []float64{m.At(2, 1), m.At(0, 2), m.At(1, 0)})
}

// leftJacobianSO3 returns the left Jacobian of SO3 at the tangent vector w.
// It maps algebra translation slots to their group columns in the closed form
// exponentials of SE3 and SE23.
func leftJacobianSO3(w mat.Vector) *mat.Dense {
	theta := mat.Norm(w, 2)
	wx := Skew(w)

	var c1, c2 float64
	if theta < angEps {
		c1 = 0.5 - theta*theta/24.0
		c2 = 1.0/6.0 - theta*theta/120.0
	} else {
		c1 = (1.0 - math.Cos(theta)) / (theta * theta)
		c2 = (theta - math.Sin(theta)) / (theta * theta * theta)
	}

	wx2 := new(mat.Dense)
	wx2.Mul(wx, wx)

	jac := eye3()
	tmp := new(mat.Dense)
	tmp.Scale(c1, wx)
	jac.Add(jac, tmp)
	tmp.Scale(c2, wx2)
	jac.Add(jac, tmp)

	return jac
}

// invLeftJacobianSO3 returns the inverse of the left Jacobian of SO3 at w.
func invLeftJacobianSO3(w mat.Vector) *mat.Dense {
	theta := mat.Norm(w, 2)
	wx := Skew(w)

	var c float64
	if theta < angEps {
		c = 1.0/12.0 + theta*theta/720.0
	} else {
		c = (1.0 - theta*math.Sin(theta)/(2.0*(1.0-math.Cos(theta)))) / (theta * theta)
	}

	wx2 := new(mat.Dense)
	wx2.Mul(wx, wx)

	jac := eye3()
	tmp := new(mat.Dense)
	tmp.Scale(-0.5, wx)
	jac.Add(jac, tmp)
	tmp.Scale(c, wx2)
	jac.Add(jac, tmp)

	return jac
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func cloneVec(v mat.Vector) *mat.VecDense {
	c := &mat.VecDense{}
	c.CloneFromVec(v)

	return c
}
