// Package propagator implements the prediction step of the filter: mean
// propagation through the lifted IMU dynamics and covariance propagation
// through the linearized error dynamics.
package propagator

import (
	"fmt"
	"sync"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-msceqf/lie"
	"github.com/milosgajdos/go-msceqf/noise"
	"github.com/milosgajdos/go-msceqf/options"
	"github.com/milosgajdos/go-msceqf/sensors"
	"github.com/milosgajdos/go-msceqf/state"
	"github.com/milosgajdos/go-msceqf/symmetry"
)

// coreDof is the number of degrees of freedom covered by the state
// transition matrix: the extended pose, bias and extrinsics blocks. Time
// offset and feature blocks keep an identity transition.
const coreDof = 21

// eps is the minimum time step the propagator integrates over.
const eps = 1e-6

// Propagator holds a buffer of IMU measurements and propagates the filter
// state between image timestamps. It is safe for concurrent use.
type Propagator struct {
	proc      *noise.Gaussian
	buffer    []*sensors.Imu
	maxSize   int
	order     int
	calibrate bool
	mu        sync.Mutex
}

// New creates a new Propagator configured by opts and returns it.
// It returns error if opts is invalid.
func New(opts *options.Options) (*Propagator, error) {
	if opts == nil {
		return nil, fmt.Errorf("invalid nil options")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	po := opts.Propagator
	proc, err := noise.NewImuProcess(po.GyroNoiseStd, po.AccNoiseStd, po.GyroBiasNoiseStd, po.AccBiasNoiseStd)
	if err != nil {
		return nil, err
	}

	return &Propagator{
		proc:      proc,
		maxSize:   po.BufferSize,
		order:     po.StateTransitionOrder,
		calibrate: opts.State.EnableExtrinsicsCalibration,
	}, nil
}

// InsertImu adds the measurement u to the IMU buffer. When the buffer is
// full the filter is first propagated to the newest buffered measurement,
// consuming the buffer. timestamp is the filter time and is advanced by the
// forced propagation.
// It returns error if u is invalid or older than the newest buffered
// measurement.
func (p *Propagator) InsertImu(x *state.MSCEqFState, xi0 *state.SystemState, u *sensors.Imu, timestamp *float64) error {
	if u == nil {
		return fmt.Errorf("invalid nil imu measurement")
	}
	if err := u.Valid(); err != nil {
		return err
	}

	p.mu.Lock()
	if n := len(p.buffer); n > 0 && u.Timestamp <= p.buffer[n-1].Timestamp {
		p.mu.Unlock()
		return fmt.Errorf("out of order imu measurement: %f", u.Timestamp)
	}
	p.buffer = append(p.buffer, u)
	full := len(p.buffer) >= p.maxSize
	p.mu.Unlock()

	if full {
		return p.Propagate(x, xi0, timestamp, u.Timestamp)
	}

	return nil
}

// Propagate advances the filter state from timestamp to newTimestamp,
// integrating the buffered IMU measurements that fall inside the window.
// Boundary measurements are linearly interpolated. The consumed
// measurements are dropped from the buffer and timestamp is set to
// newTimestamp on success.
// It returns error if the window is empty or not forward in time.
func (p *Propagator) Propagate(x *state.MSCEqFState, xi0 *state.SystemState, timestamp *float64, newTimestamp float64) error {
	if x == nil || xi0 == nil || timestamp == nil {
		return fmt.Errorf("invalid nil propagation state")
	}
	if newTimestamp <= *timestamp+eps {
		return fmt.Errorf("non increasing propagation timestamp: %f", newTimestamp)
	}

	readings := p.window(*timestamp, newTimestamp)
	if len(readings) == 0 {
		return fmt.Errorf("no imu measurements in propagation window [%f, %f]", *timestamp, newTimestamp)
	}

	tprev := *timestamp
	for i, u := range readings {
		tnext := newTimestamp
		if i+1 < len(readings) {
			tnext = readings[i+1].Timestamp
		}
		// a leading gap with no older measurement is held backwards
		if dt := u.Timestamp - tprev; dt >= eps {
			if err := p.step(x, xi0, u, dt); err != nil {
				return err
			}
			tprev = u.Timestamp
		}
		if dt := tnext - tprev; dt >= eps {
			if err := p.step(x, xi0, u, dt); err != nil {
				return err
			}
			tprev = tnext
		}
	}
	*timestamp = newTimestamp

	return nil
}

// window collects the buffered measurements inside (t0, t1], interpolating
// a measurement at either boundary when the buffer straddles it, and drops
// everything it consumed from the buffer.
func (p *Propagator) window(t0, t1 float64) []*sensors.Imu {
	p.mu.Lock()
	defer p.mu.Unlock()

	var readings []*sensors.Imu
	var pre *sensors.Imu
	keep := 0
	for i, u := range p.buffer {
		if u.Timestamp <= t0 {
			pre = u
			keep = i + 1
			continue
		}
		if len(readings) == 0 && pre != nil && u.Timestamp > t0+eps {
			alpha := (t0 - pre.Timestamp) / (u.Timestamp - pre.Timestamp)
			readings = append(readings, sensors.Lerp(pre, u, alpha))
		}
		if u.Timestamp > t1 {
			if len(readings) > 0 {
				last := readings[len(readings)-1]
				alpha := (t1 - last.Timestamp) / (u.Timestamp - last.Timestamp)
				readings = append(readings, sensors.Lerp(last, u, alpha))
			}
			break
		}
		readings = append(readings, u)
		keep = i + 1
	}
	p.buffer = p.buffer[keep:]

	return readings
}

// step integrates a single zero order hold segment of length dt with the
// measurement u: covariance first through the discrete time error
// transition, then the mean through the lifted dynamics.
func (p *Propagator) step(x *state.MSCEqFState, xi0 *state.SystemState, u *sensors.Imu, dt float64) error {
	l0, err := symmetry.Lift(xi0, u)
	if err != nil {
		return err
	}

	if err := p.propagateCovariance(x, xi0, l0, dt); err != nil {
		return err
	}

	est, err := symmetry.Phi(x, xi0)
	if err != nil {
		return err
	}
	l, err := symmetry.Lift(est, u)
	if err != nil {
		return err
	}

	return x.Integrate(l, dt)
}

// propagateCovariance applies the discrete time transition to the state
// covariance: P = Phi*P*Phi' + Qd with Phi and Qd of the core blocks and an
// identity transition elsewhere.
func (p *Propagator) propagateCovariance(x *state.MSCEqFState, xi0 *state.SystemState, l0 *state.AlgebraElement, dt float64) error {
	phi, qd, err := p.discreteTimeMatrices(xi0, l0, dt)
	if err != nil {
		return err
	}

	n := x.Dof()
	trans, err := matrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		return err
	}
	setBlock(trans, 0, 0, phi)

	cov := x.Cov()
	aux := mat.NewDense(n, n, nil)
	aux.Mul(trans, cov)
	aux.Mul(aux, trans.T())
	qs := qd.RawMatrix()
	for i := 0; i < coreDof; i++ {
		for j := 0; j < coreDof; j++ {
			aux.Set(i, j, aux.At(i, j)+qs.Data[i*qs.Stride+j])
		}
	}

	// symmetrize to keep round off from drifting the covariance
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(aux.At(i, j)+aux.At(j, i)))
		}
	}

	return x.SetCov(out)
}

// discreteTimeMatrices returns the discrete time state transition matrix and
// process noise covariance of the core blocks for a step of length dt. With
// a negative transition order both are computed exactly through a single
// block matrix exponential, otherwise a first order truncation is used.
func (p *Propagator) discreteTimeMatrices(xi0 *state.SystemState, l0 *state.AlgebraElement, dt float64) (*mat.Dense, *mat.Dense, error) {
	a := p.stateMatrix(xi0, l0)
	b := p.inputMatrix(xi0)

	// continuous process noise mapped onto the error state
	bq := mat.NewDense(coreDof, 12, nil)
	bq.Mul(b, p.proc.Cov())
	bqb := mat.NewDense(coreDof, coreDof, nil)
	bqb.Mul(bq, b.T())

	if p.order >= 1 {
		phi, err := matrix.NewDenseValIdentity(coreDof, 1.0)
		if err != nil {
			return nil, nil, err
		}
		var ad mat.Dense
		ad.Scale(dt, a)
		phi.Add(phi, &ad)
		qd := mat.NewDense(coreDof, coreDof, nil)
		qd.Scale(dt, bqb)
		return phi, qd, nil
	}

	// exact discretization through the block exponential
	//
	//	exp([A, B*Q*B'; 0, -A'] * dt) = [Phi, M12; 0, Phi^-T]
	//
	// with Qd = M12 * Phi'
	m := mat.NewDense(2*coreDof, 2*coreDof, nil)
	var ad, nad mat.Dense
	ad.Scale(dt, a)
	nad.Scale(-dt, a.T())
	var qdt mat.Dense
	qdt.Scale(dt, bqb)
	setBlock(m, 0, 0, &ad)
	setBlock(m, 0, coreDof, &qdt)
	setBlock(m, coreDof, coreDof, &nad)

	var em mat.Dense
	em.Exp(m)

	phi := mat.DenseCopyOf(em.Slice(0, coreDof, 0, coreDof))
	m12 := em.Slice(0, coreDof, coreDof, 2*coreDof)
	qd := mat.NewDense(coreDof, coreDof, nil)
	qd.Mul(m12, phi.T())

	return phi, qd, nil
}

// stateMatrix returns the continuous time state matrix of the error
// dynamics, evaluated at the origin with the current input lift.
func (p *Propagator) stateMatrix(xi0 *state.SystemState, l0 *state.AlgebraElement) *mat.Dense {
	a := mat.NewDense(coreDof, coreDof, nil)

	// extended pose rows
	setBlock(a, 0, 9, eye(3))
	setBlock(a, 3, 0, lie.Skew(xi0.Gravity()))
	setBlock(a, 3, 12, eye(3))
	setBlock(a, 6, 3, eye(3))

	// bias rows
	setBlock(a, 9, 9, lie.AdSE3(l0.Dd.SliceVec(0, 6)))

	if p.calibrate {
		// extrinsics rows
		adsinv := xi0.S().Inverse().Adjoint()
		setBlock(a, 15, 9, adsinv.Slice(0, 6, 0, 3))
		setBlock(a, 15, 3, adsinv.Slice(0, 6, 3, 6))
		var ade mat.Dense
		ade.Scale(-1, lie.AdSE3(l0.E))
		setBlock(a, 15, 15, &ade)
	}

	return a
}

// inputMatrix returns the matrix mapping the IMU noise vector (gyro and
// accelerometer white noise followed by the bias random walks) onto the
// error state.
func (p *Propagator) inputMatrix(xi0 *state.SystemState) *mat.Dense {
	b := mat.NewDense(coreDof, 12, nil)

	setBlock(b, 0, 0, eye(3))
	setBlock(b, 3, 3, eye(3))
	setBlock(b, 9, 0, lie.AdSE3(xi0.Bias()))
	setBlock(b, 9, 6, eye(3))
	setBlock(b, 12, 9, eye(3))

	if p.calibrate {
		adsinv := xi0.S().Inverse().Adjoint()
		setBlock(b, 15, 0, adsinv.Slice(0, 6, 0, 3))
	}

	return b
}

// Buffered returns the number of buffered IMU measurements.
func (p *Propagator) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.buffer)
}

// setBlock copies src into dst starting at row i, column j.
func setBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

func eye(n int) *mat.Dense {
	m, _ := matrix.NewDenseValIdentity(n, 1.0)
	return m
}
