package state

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/lie"
)

// Block names of the MSCEqF state used to index residual and covariance
// blocks. Feature blocks are addressed through their feature id instead.
const (
	// BlockDd is the semi direct bias block: the SE23 element D with the
	// bias correction 6-vector delta (15 degrees of freedom).
	BlockDd = iota
	// BlockE is the extrinsic calibration block (6 degrees of freedom).
	BlockE
	// BlockTau is the time offset block (1 degree of freedom).
	BlockTau
)

// Degrees of freedom of the fixed state blocks.
const (
	DofDd      = 15
	DofE       = 6
	DofTau     = 1
	DofFeature = 3
)

// MSCEqFState is the symmetry group element of the estimator together with
// the filter covariance over its tangent space. The group identity
// corresponds to the chosen origin state: recovering the physical estimate
// requires acting on the origin through the symmetry action.
type MSCEqFState struct {
	d     *lie.SE23
	delta *mat.VecDense
	e     *lie.SE3
	tau   float64
	ids   []uint
	gamma map[uint]*mat.VecDense
	cov   *mat.SymDense
}

// NewMSCEqFState creates a new identity group element with zero covariance
// and returns it.
func NewMSCEqFState() *MSCEqFState {
	return &MSCEqFState{
		d:     lie.NewSE23(),
		delta: mat.NewVecDense(6, nil),
		e:     lie.NewSE3(),
		tau:   0,
		gamma: make(map[uint]*mat.VecDense),
		cov:   mat.NewSymDense(DofDd+DofE+DofTau, nil),
	}
}

// AddFeature registers an identity (zero) feature block under id and grows
// the covariance by its degrees of freedom.
// It returns error if id is already present.
func (x *MSCEqFState) AddFeature(id uint) error {
	if _, ok := x.gamma[id]; ok {
		return fmt.Errorf("feature %d already present", id)
	}

	x.gamma[id] = mat.NewVecDense(3, nil)
	x.ids = append(x.ids, id)
	x.cov = x.cov.GrowSym(DofFeature).(*mat.SymDense)

	return nil
}

// Dof returns the total degrees of freedom of the group element.
func (x *MSCEqFState) Dof() int {
	return DofDd + DofE + DofTau + DofFeature*len(x.ids)
}

// Index returns the starting index of the given fixed block in the residual
// and in the covariance. It returns error if the block name is unknown.
func (x *MSCEqFState) Index(block int) (int, error) {
	switch block {
	case BlockDd:
		return 0, nil
	case BlockE:
		return DofDd, nil
	case BlockTau:
		return DofDd + DofE, nil
	}

	return 0, fmt.Errorf("unknown state block: %d", block)
}

// FeatureIndex returns the starting index of the feature block with the
// given id. It returns error if the feature is unknown.
func (x *MSCEqFState) FeatureIndex(id uint) (int, error) {
	for i, fid := range x.ids {
		if fid == id {
			return DofDd + DofE + DofTau + DofFeature*i, nil
		}
	}

	return 0, fmt.Errorf("unknown feature: %d", id)
}

// Compose returns the group composition of x with o, defined so that the
// symmetry action satisfies the left action law
//
//	Phi(x, Phi(o, xi)) == Phi(x.Compose(o), xi)
//
// The feature blocks of the result are the union of the operands' blocks,
// missing blocks composing as identity. The covariance of the result is
// zero: composition is a group operation, not a filter update.
func (x *MSCEqFState) Compose(o *MSCEqFState) *MSCEqFState {
	out := NewMSCEqFState()

	out.d = o.d.Mul(x.d)
	out.e = o.e.Mul(x.e)
	out.tau = x.tau + o.tau

	// delta composes through the adjoint of the velocity projection of D
	delta := mat.NewVecDense(6, nil)
	delta.MulVec(o.d.B().Adjoint(), x.delta)
	delta.AddVec(o.delta, delta)
	out.delta = delta

	// gamma composes through the rotation of the inner operand
	rinv := x.d.R().Inverse()
	for _, id := range x.ids {
		g := &mat.VecDense{}
		g.CloneFromVec(x.gamma[id])
		if og, ok := o.gamma[id]; ok {
			g.AddVec(g, rinv.Rotate(og))
		}
		_ = out.AddFeature(id)
		out.gamma[id] = g
	}
	for _, id := range o.ids {
		if _, ok := x.gamma[id]; ok {
			continue
		}
		_ = out.AddFeature(id)
		out.gamma[id] = rinv.Rotate(o.gamma[id])
	}

	return out
}

// Inverse returns the group inverse of x, with zero covariance.
func (x *MSCEqFState) Inverse() *MSCEqFState {
	out := NewMSCEqFState()

	out.d = x.d.Inverse()
	out.e = x.e.Inverse()
	out.tau = -x.tau

	delta := mat.NewVecDense(6, nil)
	delta.MulVec(x.d.B().Inverse().Adjoint(), x.delta)
	delta.ScaleVec(-1.0, delta)
	out.delta = delta

	r := x.d.R()
	for _, id := range x.ids {
		_ = out.AddFeature(id)
		g := r.Rotate(x.gamma[id])
		g.ScaleVec(-1.0, g)
		out.gamma[id] = g
	}

	return out
}

// D returns the extended pose block of the group element.
func (x *MSCEqFState) D() *lie.SE23 {
	return x.d.Clone()
}

// B returns the SE3 projection of D acting on the bias.
func (x *MSCEqFState) B() *lie.SE3 {
	return x.d.B()
}

// C returns the SE3 projection of D acting on extrinsics and features.
func (x *MSCEqFState) C() *lie.SE3 {
	return x.d.C()
}

// Delta returns the bias correction block of the group element.
func (x *MSCEqFState) Delta() *mat.VecDense {
	d := &mat.VecDense{}
	d.CloneFromVec(x.delta)

	return d
}

// E returns the extrinsic calibration block of the group element.
func (x *MSCEqFState) E() *lie.SE3 {
	return x.e.Clone()
}

// Tau returns the time offset block of the group element.
func (x *MSCEqFState) Tau() float64 {
	return x.tau
}

// Gamma returns the feature block with the given id.
// It returns error if the feature is unknown.
func (x *MSCEqFState) Gamma(id uint) (*mat.VecDense, error) {
	g, ok := x.gamma[id]
	if !ok {
		return nil, fmt.Errorf("unknown feature: %d", id)
	}

	out := &mat.VecDense{}
	out.CloneFromVec(g)

	return out, nil
}

// FeatureIDs returns the feature identifiers in insertion order. The order
// fixes the layout of the feature blocks in residuals and covariance.
func (x *MSCEqFState) FeatureIDs() []uint {
	ids := make([]uint, len(x.ids))
	copy(ids, x.ids)

	return ids
}

// Cov returns a copy of the state covariance.
func (x *MSCEqFState) Cov() mat.Symmetric {
	cov := mat.NewSymDense(x.cov.SymmetricDim(), nil)
	cov.CopySym(x.cov)

	return cov
}

// SetCov sets the state covariance to cov.
// It returns error if cov is nil or its dimension does not match the state
// degrees of freedom.
func (x *MSCEqFState) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}
	if cov.SymmetricDim() != x.Dof() {
		return fmt.Errorf("invalid covariance dimension: %d", cov.SymmetricDim())
	}

	x.cov.CopySym(cov)

	return nil
}

// CovBlock returns a copy of the covariance block of the given fixed block.
// It returns error if the block name is unknown.
func (x *MSCEqFState) CovBlock(block int) (*mat.Dense, error) {
	idx, err := x.Index(block)
	if err != nil {
		return nil, err
	}
	dof := DofDd
	switch block {
	case BlockE:
		dof = DofE
	case BlockTau:
		dof = DofTau
	}

	out := mat.NewDense(dof, dof, nil)
	for i := 0; i < dof; i++ {
		for j := 0; j < dof; j++ {
			out.Set(i, j, x.cov.At(idx+i, idx+j))
		}
	}

	return out, nil
}

// Clone returns a deep copy of the group element including its covariance.
func (x *MSCEqFState) Clone() *MSCEqFState {
	out := NewMSCEqFState()
	out.d = x.d.Clone()
	out.e = x.e.Clone()
	out.tau = x.tau
	out.delta.CloneFromVec(x.delta)
	for _, id := range x.ids {
		_ = out.AddFeature(id)
		out.gamma[id].CloneFromVec(x.gamma[id])
	}
	out.cov = mat.NewSymDense(x.cov.SymmetricDim(), nil)
	out.cov.CopySym(x.cov)

	return out
}

// Valid reports whether the group element is a well formed member of the
// symmetry group: finite entries, unit norm rotation blocks and a covariance
// matching the state degrees of freedom.
// It returns error describing the first violation found.
func (x *MSCEqFState) Valid() error {
	if err := validSE23(x.d); err != nil {
		return fmt.Errorf("invalid D block: %v", err)
	}
	if !finiteVec(x.delta) {
		return fmt.Errorf("delta has non-finite entries")
	}
	if err := validSE3(x.e); err != nil {
		return fmt.Errorf("invalid E block: %v", err)
	}
	if math.IsNaN(x.tau) || math.IsInf(x.tau, 0) {
		return fmt.Errorf("invalid tau: %v", x.tau)
	}
	for _, id := range x.ids {
		if !finiteVec(x.gamma[id]) {
			return fmt.Errorf("gamma %d has non-finite entries", id)
		}
	}
	if x.cov.SymmetricDim() != x.Dof() {
		return fmt.Errorf("covariance dimension %d does not match state dof %d", x.cov.SymmetricDim(), x.Dof())
	}

	return nil
}
