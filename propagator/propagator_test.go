package propagator

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/options"
	"github.com/milosgajdos/go-msceqf/sensors"
	"github.com/milosgajdos/go-msceqf/state"
)

var opts *options.Options

func setup() {
	opts = options.NewOptions()
	opts.State.EnableExtrinsicsCalibration = true
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func restImu(t float64) *sensors.Imu {
	u, err := sensors.NewImu(t, mat.NewVecDense(3, nil), mat.NewVecDense(3, []float64{0, 0, state.StandardGravity}))
	if err != nil {
		panic(err)
	}

	return u
}

func newFilterState() (*state.MSCEqFState, *state.SystemState) {
	x := state.NewMSCEqFState()

	cov := mat.NewSymDense(x.Dof(), nil)
	for i := 0; i < x.Dof(); i++ {
		cov.SetSym(i, i, 1e-3)
	}
	if err := x.SetCov(cov); err != nil {
		panic(err)
	}

	xi0, err := state.NewSystemState(nil, nil, nil, 0)
	if err != nil {
		panic(err)
	}

	return x, xi0
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	p, err := New(opts)
	assert.NoError(err)
	assert.NotNil(p)
	assert.Equal(0, p.Buffered())

	_, err = New(nil)
	assert.Error(err)

	bad := options.NewOptions()
	bad.Propagator.GyroNoiseStd = -1
	_, err = New(bad)
	assert.Error(err)
}

func TestInsertImu(t *testing.T) {
	assert := assert.New(t)

	p, err := New(opts)
	assert.NoError(err)

	x, xi0 := newFilterState()
	timestamp := 0.0

	assert.NoError(p.InsertImu(x, xi0, restImu(0.01), &timestamp))
	assert.NoError(p.InsertImu(x, xi0, restImu(0.02), &timestamp))
	assert.Equal(2, p.Buffered())

	// out of order measurements are rejected
	assert.Error(p.InsertImu(x, xi0, restImu(0.015), &timestamp))
	assert.Error(p.InsertImu(x, xi0, nil, &timestamp))
}

func TestInsertImuFullBuffer(t *testing.T) {
	assert := assert.New(t)

	small := options.NewOptions()
	small.Propagator.BufferSize = 5

	p, err := New(small)
	assert.NoError(err)

	x, xi0 := newFilterState()
	timestamp := 0.0

	for i := 1; i <= 5; i++ {
		assert.NoError(p.InsertImu(x, xi0, restImu(float64(i)*0.01), &timestamp))
	}

	// the full buffer forced a propagation to the newest measurement
	assert.InDelta(0.05, timestamp, 1e-12)
	assert.Equal(0, p.Buffered())
}

func TestPropagateStationary(t *testing.T) {
	assert := assert.New(t)

	p, err := New(opts)
	assert.NoError(err)

	x, xi0 := newFilterState()
	timestamp := 0.0

	for i := 1; i <= 10; i++ {
		assert.NoError(p.InsertImu(x, xi0, restImu(float64(i)*0.01), &timestamp))
	}

	before := mat.Trace(x.Cov())
	assert.NoError(p.Propagate(x, xi0, &timestamp, 0.1))
	assert.InDelta(0.1, timestamp, 1e-12)

	// at rest the lifted dynamics vanish and the mean holds still
	d := x.D().Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, d.AtVec(i), 1e-9)
	}
	delta := x.Delta()
	for i := 0; i < 6; i++ {
		assert.InDelta(0.0, delta.AtVec(i), 1e-9)
	}
	e := x.E().Log()
	for i := 0; i < 6; i++ {
		assert.InDelta(0.0, e.AtVec(i), 1e-9)
	}
	assert.InDelta(0.0, x.Tau(), 1e-12)

	// process noise keeps inflating the covariance
	assert.Greater(mat.Trace(x.Cov()), before)
}

func TestPropagateWindow(t *testing.T) {
	assert := assert.New(t)

	p, err := New(opts)
	assert.NoError(err)

	x, xi0 := newFilterState()
	timestamp := 0.0

	for i := 1; i <= 10; i++ {
		assert.NoError(p.InsertImu(x, xi0, restImu(float64(i)*0.01), &timestamp))
	}

	// propagating half way interpolates the boundary and keeps the rest
	assert.NoError(p.Propagate(x, xi0, &timestamp, 0.055))
	assert.InDelta(0.055, timestamp, 1e-12)
	assert.Equal(5, p.Buffered())

	// the remaining measurements cover the next window
	assert.NoError(p.Propagate(x, xi0, &timestamp, 0.2))
	assert.Equal(0, p.Buffered())

	// an empty buffer has nothing to integrate
	assert.Error(p.Propagate(x, xi0, &timestamp, 0.3))

	// propagation never moves backwards
	assert.Error(p.Propagate(x, xi0, &timestamp, 0.01))
	assert.Error(p.Propagate(nil, xi0, &timestamp, 1.0))
}

func TestPropagateBoundaryInterpolation(t *testing.T) {
	assert := assert.New(t)

	p, err := New(opts)
	assert.NoError(err)

	x, xi0 := newFilterState()

	gravity := mat.NewVecDense(3, []float64{0, 0, state.StandardGravity})
	u0, err := sensors.NewImu(0.0, mat.NewVecDense(3, []float64{0, 0, 0.2}), gravity)
	assert.NoError(err)
	u1, err := sensors.NewImu(0.1, mat.NewVecDense(3, []float64{0, 0, 0.4}), gravity)
	assert.NoError(err)

	timestamp := 0.0
	assert.NoError(p.InsertImu(x, xi0, u0, &timestamp))
	assert.NoError(p.InsertImu(x, xi0, u1, &timestamp))

	// a window opening between two measurements starts from their linear
	// interpolation, not from a backwards hold of the newer one
	timestamp = 0.05
	assert.NoError(p.Propagate(x, xi0, &timestamp, 0.1))
	assert.InDelta(0.1, timestamp, 1e-12)
	assert.Equal(0, p.Buffered())

	d := x.D().Log()
	assert.InDelta(0.0, d.AtVec(0), 1e-12)
	assert.InDelta(0.0, d.AtVec(1), 1e-12)
	assert.InDelta(0.3*0.05, d.AtVec(2), 1e-12)
}

func TestPropagateFirstOrder(t *testing.T) {
	assert := assert.New(t)

	first := options.NewOptions()
	first.Propagator.StateTransitionOrder = 1

	p, err := New(first)
	assert.NoError(err)

	x, xi0 := newFilterState()
	timestamp := 0.0

	for i := 1; i <= 5; i++ {
		assert.NoError(p.InsertImu(x, xi0, restImu(float64(i)*0.01), &timestamp))
	}

	before := mat.Trace(x.Cov())
	assert.NoError(p.Propagate(x, xi0, &timestamp, 0.05))
	assert.Greater(mat.Trace(x.Cov()), before)

	d := x.D().Log()
	for i := 0; i < 9; i++ {
		assert.InDelta(0.0, d.AtVec(i), 1e-9)
	}
}
