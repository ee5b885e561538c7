// Package options loads and validates the estimator configuration.
// Parameters are read from a YAML file; absent keys keep their defaults.
package options

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"github.com/milosgajdos/go-msceqf/lie"
	"github.com/milosgajdos/go-msceqf/state"
)

// StateOptions configure the origin state and the initial covariance.
type StateOptions struct {
	// Gravity is the gravity vector of the reference frame
	Gravity []float64 `yaml:"gravity"`
	// ExtrinsicsQuaternion is the initial camera-IMU rotation as [x, y, z, w]
	ExtrinsicsQuaternion []float64 `yaml:"extrinsics_quaternion"`
	// ExtrinsicsTranslation is the initial camera-IMU translation
	ExtrinsicsTranslation []float64 `yaml:"extrinsics_translation"`
	// TimeOffset is the initial camera-IMU time offset
	TimeOffset float64 `yaml:"time_offset"`
	// EnableExtrinsicsCalibration enables online extrinsic calibration
	EnableExtrinsicsCalibration bool `yaml:"enable_extrinsics_calibration"`
	// DdInitVar is the initial variance of the Dd block diagonal
	DdInitVar float64 `yaml:"dd_init_var"`
	// EInitVar is the initial variance of the E block diagonal
	EInitVar float64 `yaml:"e_init_var"`
	// TauInitVar is the initial variance of the time offset block
	TauInitVar float64 `yaml:"tau_init_var"`
	// FeatureInitVar is the initial variance of a feature block diagonal
	FeatureInitVar float64 `yaml:"feature_init_var"`
}

// PropagatorOptions configure the IMU propagation.
type PropagatorOptions struct {
	// GyroNoiseStd is the angular velocity noise density
	GyroNoiseStd float64 `yaml:"gyro_noise_std"`
	// AccNoiseStd is the specific force noise density
	AccNoiseStd float64 `yaml:"acc_noise_std"`
	// GyroBiasNoiseStd is the gyroscope bias random walk density
	GyroBiasNoiseStd float64 `yaml:"gyro_bias_noise_std"`
	// AccBiasNoiseStd is the accelerometer bias random walk density
	AccBiasNoiseStd float64 `yaml:"acc_bias_noise_std"`
	// BufferSize is the maximum IMU buffer size before a forced propagation
	BufferSize int `yaml:"imu_buffer_size"`
	// StateTransitionOrder selects the state transition truncation:
	// a negative value selects the exact matrix exponential, 1 selects
	// the first order truncation
	StateTransitionOrder int `yaml:"state_transition_order"`
}

// Options are the estimator options.
type Options struct {
	// State are the origin state options
	State StateOptions `yaml:"state"`
	// Propagator are the IMU propagation options
	Propagator PropagatorOptions `yaml:"propagator"`
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		State: StateOptions{
			Gravity:               []float64{0, 0, -state.StandardGravity},
			ExtrinsicsQuaternion:  []float64{0, 0, 0, 1},
			ExtrinsicsTranslation: []float64{0, 0, 0},
			TimeOffset:            0,
			DdInitVar:             1e-2,
			EInitVar:              1e-3,
			TauInitVar:            1e-5,
			FeatureInitVar:        1.0,
		},
		Propagator: PropagatorOptions{
			GyroNoiseStd:         1.6968e-4,
			AccNoiseStd:          2.0e-3,
			GyroBiasNoiseStd:     1.9393e-5,
			AccBiasNoiseStd:      3.0e-3,
			BufferSize:           1000,
			StateTransitionOrder: -1,
		},
	}
}

// Load reads options from the YAML file at path on top of the defaults.
// It returns error if the file cannot be read, parsed or validated.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %v", err)
	}

	opts := NewOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %v", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return opts, nil
}

// Validate checks the options for consistency.
// It returns error describing the first violation found.
func (o *Options) Validate() error {
	if len(o.State.Gravity) != 3 {
		return fmt.Errorf("invalid gravity dimension: %d", len(o.State.Gravity))
	}
	if len(o.State.ExtrinsicsQuaternion) != 4 {
		return fmt.Errorf("invalid extrinsics quaternion dimension: %d", len(o.State.ExtrinsicsQuaternion))
	}
	if len(o.State.ExtrinsicsTranslation) != 3 {
		return fmt.Errorf("invalid extrinsics translation dimension: %d", len(o.State.ExtrinsicsTranslation))
	}
	for _, v := range []float64{o.State.DdInitVar, o.State.EInitVar, o.State.TauInitVar, o.State.FeatureInitVar} {
		if v <= 0 {
			return fmt.Errorf("invalid initial variance: %v", v)
		}
	}
	for _, v := range []float64{
		o.Propagator.GyroNoiseStd, o.Propagator.AccNoiseStd,
		o.Propagator.GyroBiasNoiseStd, o.Propagator.AccBiasNoiseStd,
	} {
		if v <= 0 {
			return fmt.Errorf("invalid noise density: %v", v)
		}
	}
	if o.Propagator.BufferSize < 2 {
		return fmt.Errorf("invalid imu buffer size: %d", o.Propagator.BufferSize)
	}

	return nil
}

// GravityVec returns the configured gravity vector.
func (s *StateOptions) GravityVec() *mat.VecDense {
	return mat.NewVecDense(3, []float64{s.Gravity[0], s.Gravity[1], s.Gravity[2]})
}

// Extrinsics returns the configured initial camera-IMU extrinsics.
// It returns error if the configured quaternion is degenerate.
func (s *StateOptions) Extrinsics() (*lie.SE3, error) {
	r, err := lie.NewSO3FromQuaternion(quat.Number{
		Real: s.ExtrinsicsQuaternion[3],
		Imag: s.ExtrinsicsQuaternion[0],
		Jmag: s.ExtrinsicsQuaternion[1],
		Kmag: s.ExtrinsicsQuaternion[2],
	})
	if err != nil {
		return nil, err
	}

	return lie.NewSE3From(r, mat.NewVecDense(3, s.ExtrinsicsTranslation))
}
