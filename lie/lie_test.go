package lie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func TestSkewVee(t *testing.T) {
	assert := assert.New(t)

	v := mat.NewVecDense(3, []float64{0.3, -1.2, 2.5})
	m := Skew(v)

	// antisymmetry
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(m.At(i, j), -m.At(j, i), 1e-15)
		}
	}

	w := Vee(m)
	for i := 0; i < 3; i++ {
		assert.InDelta(v.AtVec(i), w.AtVec(i), 1e-15)
	}

	// skew(v)*u == v x u
	u := mat.NewVecDense(3, []float64{1.0, 2.0, 3.0})
	out := mat.NewVecDense(3, nil)
	out.MulVec(m, u)
	assert.InDelta(v.AtVec(1)*u.AtVec(2)-v.AtVec(2)*u.AtVec(1), out.AtVec(0), 1e-14)
	assert.InDelta(v.AtVec(2)*u.AtVec(0)-v.AtVec(0)*u.AtVec(2), out.AtVec(1), 1e-14)
	assert.InDelta(v.AtVec(0)*u.AtVec(1)-v.AtVec(1)*u.AtVec(0), out.AtVec(2), 1e-14)

	assert.Panics(func() { Skew(mat.NewVecDense(2, nil)) })
	assert.Panics(func() { Vee(mat.NewDense(2, 2, nil)) })
}

func TestLeftJacobianSO3(t *testing.T) {
	assert := assert.New(t)

	// V(w) * Vinv(w) == I
	w := mat.NewVecDense(3, []float64{0.4, -0.1, 0.7})
	var prod mat.Dense
	prod.Mul(leftJacobianSO3(w), invLeftJacobianSO3(w))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, prod.At(i, j), 1e-12)
		}
	}

	// small angle branch agrees with the closed form at the switch over
	small := mat.NewVecDense(3, []float64{1e-8, -1e-8, 1e-8})
	vj := leftJacobianSO3(small)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, vj.At(i, j), 1e-7)
		}
	}
}

func TestLeftJacobianSO3Numerical(t *testing.T) {
	assert := assert.New(t)

	// d/de Log(Exp(w + e*d) * Exp(w)^-1) at e=0 equals V(w)*d
	w := mat.NewVecDense(3, []float64{0.4, -0.1, 0.7})
	d := mat.NewVecDense(3, []float64{0.3, 0.5, -0.2})

	want := mat.NewVecDense(3, nil)
	want.MulVec(leftJacobianSO3(w), d)

	rinv := ExpSO3(w).Inverse()
	for i := 0; i < 3; i++ {
		i := i
		got := fd.Derivative(func(e float64) float64 {
			wd := mat.NewVecDense(3, nil)
			wd.AddScaledVec(w, e, d)
			return ExpSO3(wd).Mul(rinv).Log().AtVec(i)
		}, 0, &fd.Settings{Formula: fd.Central})
		assert.InDelta(want.AtVec(i), got, 1e-6)
	}
}
