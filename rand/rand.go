package rand

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
)

// Sampler draws zero mean normal samples with a fixed covariance. It is used
// to perturb tangent space quantities of state elements and simulated sensor
// readings.
type Sampler struct {
	// transform maps unit normal draws onto the requested covariance
	transform *mat.Dense
	rnd       *rand.Rand
}

// NewSampler creates a new Sampler for the covariance cov, seeded from src.
// The covariance square root is factored once through SVD, which stays
// stable when cov is (almost) singular.
// It returns error if cov is empty or its factorization fails.
func NewSampler(cov mat.Symmetric, src rand.Source) (*Sampler, error) {
	if cov == nil || cov.SymmetricDim() == 0 {
		return nil, fmt.Errorf("invalid covariance: %v", cov)
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	u.Mul(u, mat.NewDiagDense(len(vals), vals))

	return &Sampler{transform: u, rnd: rand.New(src)}, nil
}

// SampleN draws n samples and returns them stored in the columns of the
// returned matrix.
// It returns error if n is non-positive.
func (s *Sampler) SampleN(n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	rows, _ := s.transform.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = s.rnd.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(s.transform, samples)

	return samples, nil
}
