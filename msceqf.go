// Package msceqf implements a Multi State Constraint Equivariant Filter for
// visual inertial estimation. The filter state is an element of a symmetry
// group acting on the space of physical states, so the estimate is always
// recovered through the group action on a fixed origin.
package msceqf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/options"
	"github.com/milosgajdos/go-msceqf/propagator"
	"github.com/milosgajdos/go-msceqf/sensors"
	"github.com/milosgajdos/go-msceqf/state"
	"github.com/milosgajdos/go-msceqf/symmetry"
)

// MSCEqF is an equivariant visual inertial filter. The group element tracks
// the navigation error away from a fixed origin state, IMU measurements
// drive the prediction step through the lifted dynamics.
type MSCEqF struct {
	opts      *options.Options
	x         *state.MSCEqFState
	xi0       *state.SystemState
	prop      *propagator.Propagator
	timestamp float64
	init      bool
}

// New creates a new MSCEqF filter configured by opts and returns it.
// Nil opts selects the defaults.
// It returns error if opts is invalid.
func New(opts *options.Options) (*MSCEqF, error) {
	if opts == nil {
		opts = options.NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s, err := opts.State.Extrinsics()
	if err != nil {
		return nil, err
	}
	xi0, err := state.NewSystemState(nil, nil, s, opts.State.TimeOffset)
	if err != nil {
		return nil, err
	}
	if err := xi0.SetGravity(opts.State.GravityVec()); err != nil {
		return nil, err
	}

	x := state.NewMSCEqFState()
	if err := x.SetCov(initCov(x, &opts.State)); err != nil {
		return nil, err
	}

	prop, err := propagator.New(opts)
	if err != nil {
		return nil, err
	}

	return &MSCEqF{opts: opts, x: x, xi0: xi0, prop: prop}, nil
}

// SetOrigin replaces the filter origin with xi, resetting the group element
// to identity and the covariance to its configured initial value. It is
// meant for initializing the filter from a known reference state.
// It returns error if xi is invalid.
func (f *MSCEqF) SetOrigin(xi *state.SystemState) error {
	if xi == nil {
		return fmt.Errorf("invalid nil origin state")
	}
	if err := xi.Valid(); err != nil {
		return err
	}

	f.xi0 = xi.Clone()
	f.x = state.NewMSCEqFState()
	for _, id := range f.xi0.FeatureIDs() {
		if err := f.x.AddFeature(id); err != nil {
			return err
		}
	}

	return f.x.SetCov(initCov(f.x, &f.opts.State))
}

// AddFeature anchors a new feature with the given id at the world position
// pos: the origin gains the feature point and the group element gains the
// matching block with its configured initial variance.
// It returns error if the id is already tracked.
func (f *MSCEqF) AddFeature(id uint, pos mat.Vector) error {
	if err := f.xi0.AddFeature(id, pos); err != nil {
		return err
	}
	if err := f.x.AddFeature(id); err != nil {
		return err
	}

	n := f.x.Dof()
	cov := mat.NewSymDense(n, nil)
	cov.CopySym(f.x.Cov())
	for i := n - state.DofFeature; i < n; i++ {
		cov.SetSym(i, i, f.opts.State.FeatureInitVar)
	}

	return f.x.SetCov(cov)
}

// ProcessImu feeds the measurement u to the propagator. The first
// measurement initializes the filter time.
// It returns error if u is invalid or out of order.
func (f *MSCEqF) ProcessImu(u *sensors.Imu) error {
	if u == nil {
		return fmt.Errorf("invalid nil imu measurement")
	}
	if !f.init {
		f.timestamp = u.Timestamp
		f.init = true
	}

	return f.prop.InsertImu(f.x, f.xi0, u, &f.timestamp)
}

// PropagateTo propagates the filter state to the given timestamp,
// integrating the buffered IMU measurements.
// It returns error if the filter has not seen any measurement yet or the
// timestamp is not forward in time.
func (f *MSCEqF) PropagateTo(timestamp float64) error {
	if !f.init {
		return fmt.Errorf("filter not initialized")
	}

	return f.prop.Propagate(f.x, f.xi0, &f.timestamp, timestamp)
}

// Estimate returns the current physical state estimate: the group action
// applied to the origin.
func (f *MSCEqF) Estimate() (*state.SystemState, error) {
	return symmetry.Phi(f.x, f.xi0)
}

// State returns a copy of the filter group element.
func (f *MSCEqF) State() *state.MSCEqFState {
	return f.x.Clone()
}

// Origin returns a copy of the filter origin state.
func (f *MSCEqF) Origin() *state.SystemState {
	return f.xi0.Clone()
}

// Cov returns the filter state covariance.
func (f *MSCEqF) Cov() mat.Symmetric {
	return f.x.Cov()
}

// Timestamp returns the filter time.
func (f *MSCEqF) Timestamp() float64 {
	return f.timestamp
}

// initCov builds the initial blockwise diagonal covariance of the group
// element from the configured variances.
func initCov(x *state.MSCEqFState, so *options.StateOptions) *mat.SymDense {
	n := x.Dof()
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < state.DofDd; i++ {
		cov.SetSym(i, i, so.DdInitVar)
	}
	for i := state.DofDd; i < state.DofDd+state.DofE; i++ {
		cov.SetSym(i, i, so.EInitVar)
	}
	cov.SetSym(state.DofDd+state.DofE, state.DofDd+state.DofE, so.TauInitVar)
	for i := state.DofDd + state.DofE + state.DofTau; i < n; i++ {
		cov.SetSym(i, i, so.FeatureInitVar)
	}

	return cov
}
