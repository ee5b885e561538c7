package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/lie"
)

// AlgebraElement is a symmetry group Lie algebra element: the instantaneous
// generator of every state block. It is produced by the lift once per IMU
// sample, consumed by the propagation integrator and then discarded.
type AlgebraElement struct {
	// Dd is the extended pose generator (angular, velocity, position)
	Dd *mat.VecDense
	// Delta is the bias block generator
	Delta *mat.VecDense
	// E is the extrinsic calibration block generator
	E *mat.VecDense
	// Tau is the time offset block generator
	Tau float64
	// Gamma maps feature ids to their block generators
	Gamma map[uint]*mat.VecDense
}

// Valid reports whether the algebra element carries correctly sized blocks.
// It returns error describing the first violation found.
func (l *AlgebraElement) Valid() error {
	if l.Dd == nil || l.Dd.Len() != 9 {
		return fmt.Errorf("invalid Dd generator")
	}
	if l.Delta == nil || l.Delta.Len() != 6 {
		return fmt.Errorf("invalid Delta generator")
	}
	if l.E == nil || l.E.Len() != 6 {
		return fmt.Errorf("invalid E generator")
	}
	for id, g := range l.Gamma {
		if g == nil || g.Len() != 3 {
			return fmt.Errorf("invalid Gamma generator for feature %d", id)
		}
	}

	return nil
}

// Integrate advances the group element along the algebra element l for the
// time step dt: the blockwise exponential right translation X * exp(l*dt).
// The covariance is left untouched: covariance propagation is the
// propagator's job. Features of the group element with no generator in l
// evolve under the pose blocks alone.
// It returns error if l is malformed.
func (x *MSCEqFState) Integrate(l *AlgebraElement, dt float64) error {
	if l == nil {
		return fmt.Errorf("invalid nil algebra element")
	}
	if err := l.Valid(); err != nil {
		return err
	}

	dd := mat.NewVecDense(9, nil)
	dd.ScaleVec(dt, l.Dd)

	// delta translates through the adjoint of the current B projection
	delta := mat.NewVecDense(6, nil)
	delta.ScaleVec(dt, l.Delta)
	step := mat.NewVecDense(6, nil)
	step.MulVec(x.d.B().Adjoint(), delta)
	x.delta.AddVec(x.delta, step)

	// gamma translates through the rotation of the exponential increment
	rinc := lie.ExpSO3(dd.SliceVec(0, 3)).Inverse()
	for _, id := range x.ids {
		g := rinc.Rotate(x.gamma[id])
		if lg, ok := l.Gamma[id]; ok {
			g.AddScaledVec(g, dt, lg)
		}
		x.gamma[id] = g
	}

	x.d = x.d.Mul(lie.ExpSE23(dd))

	e := mat.NewVecDense(6, nil)
	e.ScaleVec(dt, l.E)
	x.e = x.e.Mul(lie.ExpSE3(e))

	x.tau += dt * l.Tau

	return nil
}
