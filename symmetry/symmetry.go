// Package symmetry implements the symmetry group operations of the MSCEqF:
// the group action on the physical state, the lift of the inertial dynamics
// onto the group Lie algebra, and the curvature correction applied during
// measurement updates. All operations are pure and reentrant: they read only
// their arguments and the structure matrix D.
package symmetry

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/lie"
	"github.com/milosgajdos/go-msceqf/sensors"
	"github.com/milosgajdos/go-msceqf/state"
)

// D is the structure matrix of the extended pose sub-group: it encodes the
// velocity-to-position coupling of the inertial kinematics. D is a process
// wide constant and must never be mutated.
var D = func() *mat.Dense {
	d := mat.NewDense(5, 5, nil)
	d.Set(3, 4, 1.0)

	return d
}()

// AlgebraElement is a symmetry group Lie algebra element produced by Lift
// once per IMU sample.
type AlgebraElement = state.AlgebraElement

// Phi is the action of the symmetry group on the homogeneous space: it maps
// the group element X and the physical state xi to a new physical state. The
// action satisfies the left action law
//
//	Phi(X1, Phi(X2, xi)) == Phi(X1.Compose(X2), xi)
//
// Rotation blocks of the result stay normalized and feature keys are
// preserved: only anchor values transform. Features of xi with no matching
// block in X transform through the pose alone.
// It returns error if X or xi is not a valid member of its space.
func Phi(x *state.MSCEqFState, xi *state.SystemState) (*state.SystemState, error) {
	if x == nil || xi == nil {
		return nil, fmt.Errorf("invalid nil input")
	}
	if err := x.Valid(); err != nil {
		return nil, fmt.Errorf("invalid group element: %v", err)
	}
	if err := xi.Valid(); err != nil {
		return nil, fmt.Errorf("invalid system state: %v", err)
	}

	// extended pose: T * D
	t := xi.T().Mul(x.D())

	// bias: Ad(B^-1) * (b - delta)
	b := xi.Bias()
	b.SubVec(b, x.Delta())
	bias := mat.NewVecDense(6, nil)
	bias.MulVec(x.B().Inverse().Adjoint(), b)

	// extrinsics: C^-1 * S * E
	cinv := x.C().Inverse()
	s := cinv.Mul(xi.S()).Mul(x.E())

	out, err := state.NewSystemState(t, bias, s, xi.TimeOffset()+x.Tau())
	if err != nil {
		return nil, err
	}
	if err := out.SetGravity(xi.Gravity()); err != nil {
		return nil, err
	}

	// features: C^-1 * f + gamma
	for _, id := range xi.FeatureIDs() {
		f, err := xi.Feature(id)
		if err != nil {
			return nil, err
		}
		anchor := cinv.Transform(f)
		if g, gerr := x.Gamma(id); gerr == nil {
			anchor.AddVec(anchor, g)
		}
		if err := out.AddFeature(id, anchor); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Lift maps the physical state xi and the raw inertial measurement u to the
// symmetry group Lie algebra element that drives the lifted system: the
// group exponential flow of the lifted element pushes forward, through Phi,
// onto the flow of the inertial dynamics.
// It returns error if xi or u is not well formed.
func Lift(xi *state.SystemState, u *sensors.Imu) (*AlgebraElement, error) {
	if xi == nil || u == nil {
		return nil, fmt.Errorf("invalid nil input")
	}
	if err := xi.Valid(); err != nil {
		return nil, fmt.Errorf("invalid system state: %v", err)
	}
	if err := u.Valid(); err != nil {
		return nil, fmt.Errorf("invalid imu measurement: %v", err)
	}

	t := xi.T()
	r := t.R()
	b := xi.Bias()

	// bias compensated angular velocity
	w := mat.NewVecDense(3, nil)
	w.SubVec(u.Gyro, b.SliceVec(0, 3))

	// bias and gravity compensated specific force
	a := mat.NewVecDense(3, nil)
	a.SubVec(u.Acc, b.SliceVec(3, 6))
	a.AddVec(a, r.RotateInv(xi.Gravity()))

	// the position slot is the curvature of the velocity-to-position
	// coupling: the position column of D - T^-1 * D * T
	n := structureTwist(t)

	dd := mat.NewVecDense(9, []float64{
		w.AtVec(0), w.AtVec(1), w.AtVec(2),
		a.AtVec(0), a.AtVec(1), a.AtVec(2),
		n.AtVec(0), n.AtVec(1), n.AtVec(2),
	})

	// bias block: ad(b) applied to the (angular, velocity) part of Dd
	delta := mat.NewVecDense(6, nil)
	delta.MulVec(lie.AdSE3(b), dd.SliceVec(0, 6))

	// extrinsic block: Ad(S^-1) applied to the (angular, position) part
	wn := mat.NewVecDense(6, []float64{
		w.AtVec(0), w.AtVec(1), w.AtVec(2),
		n.AtVec(0), n.AtVec(1), n.AtVec(2),
	})
	e := mat.NewVecDense(6, nil)
	e.MulVec(xi.S().Inverse().Adjoint(), wn)

	out := &AlgebraElement{
		Dd:    dd,
		Delta: delta,
		E:     e,
		Tau:   0,
		Gamma: make(map[uint]*mat.VecDense),
	}

	// feature blocks: w x f + nu
	for _, id := range xi.FeatureIDs() {
		f, err := xi.Feature(id)
		if err != nil {
			return nil, err
		}
		g := mat.NewVecDense(3, nil)
		g.MulVec(lie.Skew(w), f)
		g.AddVec(g, n)
		out.Gamma[id] = g
	}

	return out, nil
}

// CurvatureCorrection returns the Gamma matrix compensating the second order
// curvature terms of the action at X during a measurement update. The
// innovation is laid out as [Dd | E | tau | features] with features in the
// group element's insertion order; blocks beyond the innovation length are
// ignored. An empty innovation yields an empty matrix: a no-op correction.
// It returns error if X is not a valid group element.
func CurvatureCorrection(x *state.MSCEqFState, inn mat.Vector) (*mat.Dense, error) {
	if x == nil {
		return nil, fmt.Errorf("invalid nil group element")
	}
	if err := x.Valid(); err != nil {
		return nil, fmt.Errorf("invalid group element: %v", err)
	}

	if inn == nil || inn.Len() == 0 {
		return &mat.Dense{}, nil
	}
	dim := inn.Len()

	gamma, err := matrix.NewDenseValIdentity(dim, 1.0)
	if err != nil {
		return nil, err
	}

	// delta rows couple to the (angular, velocity) columns of Dd
	if dim >= state.DofDd {
		ad := lie.AdSE3(x.Delta())
		ad.Scale(0.5, ad)
		gamma.Slice(9, 15, 0, 6).(*mat.Dense).Copy(ad)
	}

	// feature rows couple to the angular columns of Dd
	offset := state.DofDd + state.DofE + state.DofTau
	for _, id := range x.FeatureIDs() {
		if offset+state.DofFeature > dim {
			break
		}
		g, err := x.Gamma(id)
		if err != nil {
			return nil, err
		}
		sk := lie.Skew(g)
		sk.Scale(0.5, sk)
		gamma.Slice(offset, offset+state.DofFeature, 0, 3).(*mat.Dense).Copy(sk)
		offset += state.DofFeature
	}

	return gamma, nil
}

// structureTwist extracts the extended pose tangent slot induced by the
// structure matrix: the position column of D - T^-1 * D * T.
func structureTwist(t *lie.SE23) *mat.VecDense {
	tm := t.Matrix()
	tinv := t.Inverse().Matrix()

	dt := new(mat.Dense)
	dt.Mul(D, tm)
	aux := new(mat.Dense)
	aux.Mul(tinv, dt)
	aux.Sub(D, aux)

	return mat.NewVecDense(3, []float64{aux.At(0, 4), aux.At(1, 4), aux.At(2, 4)})
}
