package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	dist, ok := newGaussianDist(mean, cov)
	if !ok {
		return nil, fmt.Errorf("failed to create new Gaussian noise")
	}

	return &Gaussian{
		dist: dist,
		mean: mean,
		cov:  cov,
	}, nil
}

// NewImuProcess creates the Gaussian process noise of the IMU propagation:
// the 12 dimensional zero mean white noise stacking angular velocity noise,
// specific force noise, gyroscope bias random walk and accelerometer bias
// random walk, built from their continuous-time densities.
// It returns error if any density is not positive.
func NewImuProcess(gyroStd, accStd, gyroBiasStd, accBiasStd float64) (*Gaussian, error) {
	for _, std := range []float64{gyroStd, accStd, gyroBiasStd, accBiasStd} {
		if std <= 0 {
			return nil, fmt.Errorf("invalid noise density: %v", std)
		}
	}

	cov := mat.NewSymDense(12, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, gyroStd*gyroStd)
		cov.SetSym(3+i, 3+i, accStd*accStd)
		cov.SetSym(6+i, 6+i, gyroBiasStd*gyroBiasStd)
		cov.SetSym(9+i, 9+i, accBiasStd*accBiasStd)
	}

	return NewGaussian(make([]float64, 12), cov)
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// Reset resets Gaussian noise.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	dist, ok := newGaussianDist(g.mean, g.cov)
	if !ok {
		return fmt.Errorf("failed to reset Gaussian noise")
	}
	g.dist = dist

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.Mean(), mat.Formatted(g.Cov(), mat.Prefix("    "), mat.Squeeze()))
}

func newGaussianDist(mean []float64, cov mat.Symmetric) (*distmv.Normal, bool) {
	if cov == nil || len(mean) != cov.SymmetricDim() {
		return nil, false
	}

	seed := rand.NewSource(uint64(time.Now().UnixNano()))

	return distmv.NewNormal(mean, cov, seed)
}

// None is noise with empty mean and zero size covariance matrix, used by
// noiseless (deterministic) runs.
type None struct{}

// NewNone creates new None noise and returns it
func NewNone() (*None, error) {
	return &None{}, nil
}

// Sample returns zero size vector.
func (e *None) Sample() mat.Vector {
	sample := &mat.VecDense{}

	return sample
}

// Cov returns zero size covariance matrix.
func (e *None) Cov() mat.Symmetric {
	cov := &mat.SymDense{}

	return cov
}

// Mean returns None mean.
func (e *None) Mean() []float64 {
	var mean []float64

	return mean
}

// Reset does nothing.
func (e *None) Reset() error {
	return nil
}

// String implements the Stringer interface.
func (e *None) String() string {
	return "None{}"
}
