// Package sim generates synthetic IMU measurements and reference states
// along analytic trajectories, used to exercise the filter without a real
// dataset.
package sim

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/lie"
	mscrand "github.com/milosgajdos/go-msceqf/rand"
	"github.com/milosgajdos/go-msceqf/sensors"
)

// Config configures the simulated trajectory: a circle of the given radius
// flown at constant angular rate with a sinusoidal altitude profile, the
// body yaw tracking the tangent. Zero noise densities produce ideal
// measurements.
type Config struct {
	// Duration is the trajectory length in seconds
	Duration float64
	// Rate is the IMU rate in Hz
	Rate float64
	// Radius is the circle radius in meters
	Radius float64
	// Omega is the circular angular rate in rad/s
	Omega float64
	// Altitude is the amplitude of the sinusoidal altitude profile
	Altitude float64
	// Gravity is the world gravity vector, nil for (0, 0, -StandardGravity)
	Gravity *mat.VecDense
	// GyroNoiseStd is the gyroscope white noise standard deviation
	GyroNoiseStd float64
	// AccNoiseStd is the accelerometer white noise standard deviation
	AccNoiseStd float64
	// Seed seeds the measurement noise source
	Seed uint64
}

// Sim is a synthetic trajectory generator.
type Sim struct {
	c Config
	g *mat.VecDense
}

// New creates a new Sim from the given config and returns it.
// It returns error if the config is invalid.
func New(c Config) (*Sim, error) {
	if c.Duration <= 0 {
		return nil, fmt.Errorf("invalid duration: %f", c.Duration)
	}
	if c.Rate <= 0 {
		return nil, fmt.Errorf("invalid rate: %f", c.Rate)
	}
	if c.Radius < 0 || c.GyroNoiseStd < 0 || c.AccNoiseStd < 0 {
		return nil, fmt.Errorf("invalid negative config value")
	}

	g := mat.NewVecDense(3, []float64{0, 0, -9.80665})
	if c.Gravity != nil {
		if c.Gravity.Len() != 3 {
			return nil, fmt.Errorf("invalid gravity: %v", c.Gravity)
		}
		g.CloneFromVec(c.Gravity)
	}

	return &Sim{c: c, g: g}, nil
}

// Run generates the IMU measurements and the reference states of the
// configured trajectory, both sampled at the IMU rate.
// It returns error if the measurement noise can not be sampled.
func (s *Sim) Run() ([]*sensors.Imu, []*sensors.Groundtruth, error) {
	n := int(s.c.Duration*s.c.Rate) + 1
	dt := 1.0 / s.c.Rate

	var gyroNoise, accNoise *mat.Dense
	if s.c.GyroNoiseStd > 0 || s.c.AccNoiseStd > 0 {
		// discrete noise std scales with the sampling rate
		gv := s.c.GyroNoiseStd * s.c.GyroNoiseStd * s.c.Rate
		av := s.c.AccNoiseStd * s.c.AccNoiseStd * s.c.Rate
		cov := mat.NewSymDense(6, nil)
		for i := 0; i < 3; i++ {
			cov.SetSym(i, i, gv)
			cov.SetSym(i+3, i+3, av)
		}
		sampler, err := mscrand.NewSampler(cov, rand.NewSource(s.c.Seed))
		if err != nil {
			return nil, nil, err
		}
		samples, err := sampler.SampleN(n)
		if err != nil {
			return nil, nil, err
		}
		gyroNoise = mat.DenseCopyOf(samples.Slice(0, 3, 0, n))
		accNoise = mat.DenseCopyOf(samples.Slice(3, 6, 0, n))
	}

	data := make([]*sensors.Imu, 0, n)
	truth := make([]*sensors.Groundtruth, 0, n)
	for k := 0; k < n; k++ {
		t := float64(k) * dt
		q, p, v, acc := s.at(t)

		// exact body rates: constant yaw rate, specific force from the
		// world acceleration and gravity
		w := mat.NewVecDense(3, []float64{0, 0, s.c.Omega})
		f := mat.NewVecDense(3, nil)
		f.SubVec(acc, s.g)
		f = q.RotateInv(f)

		if gyroNoise != nil {
			for i := 0; i < 3; i++ {
				w.SetVec(i, w.AtVec(i)+gyroNoise.At(i, k))
				f.SetVec(i, f.AtVec(i)+accNoise.At(i, k))
			}
		}

		u, err := sensors.NewImu(t, w, f)
		if err != nil {
			return nil, nil, err
		}
		data = append(data, u)
		truth = append(truth, &sensors.Groundtruth{
			Timestamp: t,
			Q:         q,
			P:         p,
			V:         v,
			Bw:        mat.NewVecDense(3, nil),
			Ba:        mat.NewVecDense(3, nil),
		})
	}

	return data, truth, nil
}

// at evaluates the analytic trajectory at time t: orientation, position,
// velocity and world acceleration.
func (s *Sim) at(t float64) (*lie.SO3, *mat.VecDense, *mat.VecDense, *mat.VecDense) {
	r, w, a := s.c.Radius, s.c.Omega, s.c.Altitude
	sin, cos := math.Sin(w*t), math.Cos(w*t)

	p := mat.NewVecDense(3, []float64{r * cos, r * sin, a * sin})
	v := mat.NewVecDense(3, []float64{-r * w * sin, r * w * cos, a * w * cos})
	acc := mat.NewVecDense(3, []float64{-r * w * w * cos, -r * w * w * sin, -a * w * w * sin})

	q := lie.ExpSO3(mat.NewVecDense(3, []float64{0, 0, w * t}))

	return q, p, v, acc
}
