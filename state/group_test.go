package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func newGroupElement(t *testing.T, seed float64) *MSCEqFState {
	x := NewMSCEqFState()

	l := &AlgebraElement{
		Dd:    mat.NewVecDense(9, []float64{0.1 * seed, -0.2, 0.3, 0.5 * seed, -0.1, 0.2, 0.4, 0.1 * seed, -0.3}),
		Delta: mat.NewVecDense(6, []float64{0.2, -0.1 * seed, 0.3, 0.1, 0.5, -0.2 * seed}),
		E:     mat.NewVecDense(6, []float64{-0.1, 0.2 * seed, 0.1, 0.3, -0.4, 0.2}),
		Tau:   0.05 * seed,
	}
	if err := x.Integrate(l, 1.0); err != nil {
		t.Fatalf("failed to build group element: %v", err)
	}

	return x
}

func TestNewMSCEqFState(t *testing.T) {
	assert := assert.New(t)

	x := NewMSCEqFState()
	assert.NotNil(x)
	assert.NoError(x.Valid())
	assert.Equal(DofDd+DofE+DofTau, x.Dof())

	// identity blocks
	d := x.D().Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, d.AtVec(i), 1e-15)
	}
	delta := x.Delta()
	for i := 0; i < 6; i++ {
		assert.InDelta(0.0, delta.AtVec(i), 1e-15)
	}
	assert.InDelta(0.0, x.Tau(), 1e-15)

	cov := x.Cov()
	n, _ := cov.Dims()
	assert.Equal(x.Dof(), n)
}

func TestMSCEqFStateIndex(t *testing.T) {
	assert := assert.New(t)

	x := NewMSCEqFState()

	i, err := x.Index(BlockDd)
	assert.NoError(err)
	assert.Equal(0, i)

	i, err = x.Index(BlockE)
	assert.NoError(err)
	assert.Equal(15, i)

	i, err = x.Index(BlockTau)
	assert.NoError(err)
	assert.Equal(21, i)

	_, err = x.Index(42)
	assert.Error(err)
}

func TestMSCEqFStateFeatures(t *testing.T) {
	assert := assert.New(t)

	x := NewMSCEqFState()
	assert.NoError(x.AddFeature(7))
	assert.NoError(x.AddFeature(2))
	assert.Error(x.AddFeature(7))

	assert.Equal([]uint{7, 2}, x.FeatureIDs())
	assert.Equal(DofDd+DofE+DofTau+2*DofFeature, x.Dof())

	// covariance grows with the feature blocks
	n, _ := x.Cov().Dims()
	assert.Equal(x.Dof(), n)

	i, err := x.FeatureIndex(2)
	assert.NoError(err)
	assert.Equal(25, i)

	_, err = x.FeatureIndex(42)
	assert.Error(err)

	g, err := x.Gamma(7)
	assert.NoError(err)
	for i := 0; i < 3; i++ {
		assert.InDelta(0.0, g.AtVec(i), 1e-15)
	}
}

func TestMSCEqFStateComposeInverse(t *testing.T) {
	assert := assert.New(t)

	x := newGroupElement(t, 1.0)
	assert.NoError(x.AddFeature(1))

	// identity is neutral on both sides
	id := NewMSCEqFState()
	for _, y := range []*MSCEqFState{x.Compose(id), id.Compose(x)} {
		diff := y.D().Inverse().Mul(x.D()).Log()
		for i := 0; i < 9; i++ {
			assert.InDelta(0.0, diff.AtVec(i), 1e-12)
		}
		dd := mat.NewVecDense(6, nil)
		dd.SubVec(y.Delta(), x.Delta())
		for i := 0; i < 6; i++ {
			assert.InDelta(0.0, dd.AtVec(i), 1e-12)
		}
		assert.InDelta(x.Tau(), y.Tau(), 1e-12)
	}

	// x^-1 composed with x is the identity
	for _, y := range []*MSCEqFState{x.Compose(x.Inverse()), x.Inverse().Compose(x)} {
		d := y.D().Log()
		for i := 0; i < 9; i++ {
			assert.InDelta(0.0, d.AtVec(i), 1e-10)
		}
		delta := y.Delta()
		for i := 0; i < 6; i++ {
			assert.InDelta(0.0, delta.AtVec(i), 1e-10)
		}
		e := y.E().Log()
		for i := 0; i < 6; i++ {
			assert.InDelta(0.0, e.AtVec(i), 1e-10)
		}
		assert.InDelta(0.0, y.Tau(), 1e-12)

		g, err := y.Gamma(1)
		assert.NoError(err)
		for i := 0; i < 3; i++ {
			assert.InDelta(0.0, g.AtVec(i), 1e-10)
		}
	}
}

func TestMSCEqFStateCov(t *testing.T) {
	assert := assert.New(t)

	x := NewMSCEqFState()

	cov := mat.NewSymDense(x.Dof(), nil)
	for i := 0; i < x.Dof(); i++ {
		cov.SetSym(i, i, float64(i+1))
	}
	assert.NoError(x.SetCov(cov))

	// wrong dimension is rejected
	assert.Error(x.SetCov(mat.NewSymDense(3, nil)))

	blk, err := x.CovBlock(BlockE)
	assert.NoError(err)
	r, c := blk.Dims()
	assert.Equal(DofE, r)
	assert.Equal(DofE, c)
	assert.InDelta(16.0, blk.At(0, 0), 1e-15)
}

func TestMSCEqFStateClone(t *testing.T) {
	assert := assert.New(t)

	x := newGroupElement(t, 2.0)
	assert.NoError(x.AddFeature(5))

	clone := x.Clone()
	assert.NoError(clone.Valid())

	diff := clone.D().Inverse().Mul(x.D()).Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, diff.AtVec(i), 1e-12)
	}

	// mutating the clone leaves the original untouched
	assert.NoError(clone.AddFeature(6))
	assert.Equal([]uint{5}, x.FeatureIDs())
	assert.Equal([]uint{5, 6}, clone.FeatureIDs())
}
