package state

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/milosgajdos/go-msceqf/lie"
)

// StandardGravity is the default magnitude of the gravity vector.
const StandardGravity = 9.80665

// SystemState is the physical (homogeneous space) element of the estimator:
// the extended pose of the IMU frame, the inertial biases, the camera-IMU
// extrinsic calibration and time offset, and the estimated feature anchors.
type SystemState struct {
	t     *lie.SE23
	b     *mat.VecDense
	s     *lie.SE3
	toff  float64
	g     *mat.VecDense
	ids   []uint
	feats map[uint]*mat.VecDense
}

// NewSystemState creates a new SystemState and returns it.
// A nil extended pose or extrinsics defaults to identity; a nil bias defaults
// to zero. It returns error if the bias is not a 6-vector.
func NewSystemState(t *lie.SE23, b mat.Vector, s *lie.SE3, toff float64) (*SystemState, error) {
	if t == nil {
		t = lie.NewSE23()
	}
	if s == nil {
		s = lie.NewSE3()
	}
	if b == nil {
		b = mat.NewVecDense(6, nil)
	}
	if b.Len() != 6 {
		return nil, fmt.Errorf("invalid bias dimension: %d", b.Len())
	}

	bias := &mat.VecDense{}
	bias.CloneFromVec(b)

	return &SystemState{
		t:     t.Clone(),
		b:     bias,
		s:     s.Clone(),
		toff:  toff,
		g:     mat.NewVecDense(3, []float64{0, 0, -StandardGravity}),
		feats: make(map[uint]*mat.VecDense),
	}, nil
}

// SetGravity sets the gravity vector of the reference frame.
// It returns error if g is not a 3-vector.
func (x *SystemState) SetGravity(g mat.Vector) error {
	if g == nil || g.Len() != 3 {
		return fmt.Errorf("invalid gravity vector: %v", g)
	}
	x.g.CloneFromVec(g)

	return nil
}

// Gravity returns the gravity vector of the reference frame.
func (x *SystemState) Gravity() *mat.VecDense {
	g := &mat.VecDense{}
	g.CloneFromVec(x.g)

	return g
}

// AddFeature registers the feature anchor pos under id.
// It returns error if id is already present or pos is not a 3-vector.
func (x *SystemState) AddFeature(id uint, pos mat.Vector) error {
	if _, ok := x.feats[id]; ok {
		return fmt.Errorf("feature %d already present", id)
	}
	if pos == nil {
		pos = mat.NewVecDense(3, nil)
	}
	if pos.Len() != 3 {
		return fmt.Errorf("invalid feature dimension: %d", pos.Len())
	}

	p := &mat.VecDense{}
	p.CloneFromVec(pos)
	x.feats[id] = p
	x.ids = append(x.ids, id)

	return nil
}

// Feature returns the anchor position of the feature with the given id.
// It returns error if the feature is unknown.
func (x *SystemState) Feature(id uint) (*mat.VecDense, error) {
	p, ok := x.feats[id]
	if !ok {
		return nil, fmt.Errorf("unknown feature: %d", id)
	}

	out := &mat.VecDense{}
	out.CloneFromVec(p)

	return out, nil
}

// FeatureIDs returns the feature identifiers in insertion order.
func (x *SystemState) FeatureIDs() []uint {
	ids := make([]uint, len(x.ids))
	copy(ids, x.ids)

	return ids
}

// T returns the extended pose of the state.
func (x *SystemState) T() *lie.SE23 {
	return x.t.Clone()
}

// Bias returns the stacked gyroscope and accelerometer bias 6-vector.
func (x *SystemState) Bias() *mat.VecDense {
	b := &mat.VecDense{}
	b.CloneFromVec(x.b)

	return b
}

// S returns the camera-IMU extrinsic calibration.
func (x *SystemState) S() *lie.SE3 {
	return x.s.Clone()
}

// TimeOffset returns the camera-IMU time offset.
func (x *SystemState) TimeOffset() float64 {
	return x.toff
}

// Clone returns a deep copy of the state.
func (x *SystemState) Clone() *SystemState {
	c, _ := NewSystemState(x.t, x.b, x.s, x.toff)
	c.g.CloneFromVec(x.g)
	for _, id := range x.ids {
		_ = c.AddFeature(id, x.feats[id])
	}

	return c
}

// Valid reports whether the state is a well formed homogeneous space element:
// finite entries and unit norm rotations.
// It returns error describing the first violation found.
func (x *SystemState) Valid() error {
	if err := validSE23(x.t); err != nil {
		return fmt.Errorf("invalid extended pose: %v", err)
	}
	if !finiteVec(x.b) {
		return fmt.Errorf("bias has non-finite entries")
	}
	if err := validSE3(x.s); err != nil {
		return fmt.Errorf("invalid extrinsics: %v", err)
	}
	if math.IsNaN(x.toff) || math.IsInf(x.toff, 0) {
		return fmt.Errorf("invalid time offset: %v", x.toff)
	}
	for _, id := range x.ids {
		if !finiteVec(x.feats[id]) {
			return fmt.Errorf("feature %d has non-finite entries", id)
		}
	}

	return nil
}

func finiteVec(v *mat.VecDense) bool {
	data := v.RawVector().Data
	if floats.HasNaN(data) {
		return false
	}
	for _, f := range data {
		if math.IsInf(f, 0) {
			return false
		}
	}

	return true
}

func validRotation(r *lie.SO3) error {
	q := r.Quaternion()
	n := quat.Abs(q)
	if math.IsNaN(n) || math.Abs(n-1.0) > 1e-9 {
		return fmt.Errorf("rotation quaternion norm: %v", n)
	}

	return nil
}

func validSE3(e *lie.SE3) error {
	if err := validRotation(e.R()); err != nil {
		return err
	}
	if !finiteVec(e.T()) {
		return fmt.Errorf("translation has non-finite entries")
	}

	return nil
}

func validSE23(t *lie.SE23) error {
	if err := validRotation(t.R()); err != nil {
		return err
	}
	if !finiteVec(t.V()) || !finiteVec(t.P()) {
		return fmt.Errorf("velocity or position has non-finite entries")
	}

	return nil
}
