package lie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSE23ExpLog(t *testing.T) {
	assert := assert.New(t)

	v := mat.NewVecDense(9, []float64{0.3, -0.2, 0.5, 1.0, -2.0, 0.7, 0.4, 0.1, -0.6})
	x := ExpSE23(v)
	w := x.Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(v.AtVec(i), w.AtVec(i), 1e-12)
	}

	zero := NewSE23().Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, zero.AtVec(i), 1e-15)
	}
}

func TestSE23MulInverse(t *testing.T) {
	assert := assert.New(t)

	a := ExpSE23(mat.NewVecDense(9, []float64{0.1, 0.2, -0.3, 0.5, 0.0, -1.0, 0.2, -0.4, 0.6}))
	b := ExpSE23(mat.NewVecDense(9, []float64{-0.4, 0.1, 0.6, -0.2, 0.8, 0.3, -0.1, 0.5, 0.0}))

	res := b.Inverse().Mul(a.Inverse()).Mul(a.Mul(b)).Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, res.AtVec(i), 1e-12)
	}

	// 5x5 homogeneous matrix product agrees with Mul
	var m mat.Dense
	m.Mul(a.Matrix(), b.Matrix())
	ab := a.Mul(b).Matrix()
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			assert.InDelta(m.At(i, j), ab.At(i, j), 1e-12)
		}
	}
}

func TestSE23Adjoint(t *testing.T) {
	assert := assert.New(t)

	x := ExpSE23(mat.NewVecDense(9, []float64{0.2, -0.1, 0.4, 1.0, 2.0, -0.5, 0.3, 0.0, 0.8}))
	v := mat.NewVecDense(9, []float64{0.05, 0.1, -0.07, 0.3, -0.2, 0.1, 0.15, -0.1, 0.2})

	adv := mat.NewVecDense(9, nil)
	adv.MulVec(x.Adjoint(), v)

	left := x.Mul(ExpSE23(v)).Mul(x.Inverse())
	diff := left.Inverse().Mul(ExpSE23(adv)).Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, diff.AtVec(i), 1e-10)
	}
}

func TestSE23Projections(t *testing.T) {
	assert := assert.New(t)

	r := ExpSO3(mat.NewVecDense(3, []float64{0.1, -0.2, 0.3}))
	v := mat.NewVecDense(3, []float64{1.0, 2.0, 3.0})
	p := mat.NewVecDense(3, []float64{-0.5, 0.4, 0.9})

	x, err := NewSE23From(r, v, p)
	assert.NoError(err)

	// B carries the velocity, C carries the position
	bt := x.B().T()
	ct := x.C().T()
	for i := 0; i < 3; i++ {
		assert.InDelta(v.AtVec(i), bt.AtVec(i), 1e-15)
		assert.InDelta(p.AtVec(i), ct.AtVec(i), 1e-15)
	}

	// both projections are homomorphisms
	y := ExpSE23(mat.NewVecDense(9, []float64{0.3, 0.1, -0.2, 0.5, -0.6, 0.2, 0.8, 0.1, -0.3}))
	diffB := x.Mul(y).B().Inverse().Mul(x.B().Mul(y.B())).Log()
	diffC := x.Mul(y).C().Inverse().Mul(x.C().Mul(y.C())).Log()
	for i := 0; i < 6; i++ {
		assert.InDelta(0.0, diffB.AtVec(i), 1e-12)
		assert.InDelta(0.0, diffC.AtVec(i), 1e-12)
	}
}

func TestNewSE23From(t *testing.T) {
	assert := assert.New(t)

	// nil arguments default to identity
	x, err := NewSE23From(nil, nil, nil)
	assert.NoError(err)
	w := x.Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, w.AtVec(i), 1e-15)
	}

	_, err = NewSE23From(nil, mat.NewVecDense(2, nil), nil)
	assert.Error(err)
}
