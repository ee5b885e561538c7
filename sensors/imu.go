package sensors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Imu is a single inertial measurement: angular velocity and specific force
// read at the given timestamp. Imu values are read-only to their consumers.
type Imu struct {
	// Timestamp is the measurement time in seconds
	Timestamp float64
	// Gyro is the measured angular velocity
	Gyro *mat.VecDense
	// Acc is the measured specific force
	Acc *mat.VecDense
}

// NewImu creates a new Imu measurement and returns it.
// It returns error if gyro or acc is not a 3-vector.
func NewImu(timestamp float64, gyro, acc mat.Vector) (*Imu, error) {
	if gyro == nil || gyro.Len() != 3 {
		return nil, fmt.Errorf("invalid angular velocity: %v", gyro)
	}
	if acc == nil || acc.Len() != 3 {
		return nil, fmt.Errorf("invalid specific force: %v", acc)
	}

	g := &mat.VecDense{}
	g.CloneFromVec(gyro)
	a := &mat.VecDense{}
	a.CloneFromVec(acc)

	return &Imu{Timestamp: timestamp, Gyro: g, Acc: a}, nil
}

// Valid reports whether the measurement holds finite readings.
// It returns error describing the first violation found.
func (u *Imu) Valid() error {
	if u.Gyro == nil || u.Gyro.Len() != 3 || u.Acc == nil || u.Acc.Len() != 3 {
		return fmt.Errorf("invalid imu dimensions")
	}
	for _, v := range u.Gyro.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("imu has non finite angular velocity")
		}
	}
	for _, v := range u.Acc.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("imu has non finite specific force")
		}
	}
	if math.IsNaN(u.Timestamp) || math.IsInf(u.Timestamp, 0) {
		return fmt.Errorf("imu has non finite timestamp")
	}

	return nil
}

// Lerp returns the linear interpolation (1-alpha)*pre + alpha*post of two
// Imu measurements. alpha is clamped to [0, 1].
func Lerp(pre, post *Imu, alpha float64) *Imu {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	gyro := mat.NewVecDense(3, nil)
	gyro.AddScaledVec(gyro, 1.0-alpha, pre.Gyro)
	gyro.AddScaledVec(gyro, alpha, post.Gyro)

	acc := mat.NewVecDense(3, nil)
	acc.AddScaledVec(acc, 1.0-alpha, pre.Acc)
	acc.AddScaledVec(acc, alpha, post.Acc)

	u, _ := NewImu((1.0-alpha)*pre.Timestamp+alpha*post.Timestamp, gyro, acc)

	return u
}
