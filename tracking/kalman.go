package tracking

// KalmanFilter implements a 2D Kalman filter for pixel position and
// velocity. Time is measured in frames: offline processing has no wall
// clock, and frame spacing is what the motion model actually sees.
type KalmanFilter struct {
	// State vector [x, y, vx, vy], velocities in pixels per frame
	state [4]float64
	// Covariance matrix
	P [4][4]float64
	// Process noise
	Q [4][4]float64
	// Measurement noise
	R [2][2]float64
	// Initialized flag
	initialized bool
}

// NewKalmanFilter creates a new Kalman filter.
func NewKalmanFilter() *KalmanFilter {
	kf := &KalmanFilter{}

	// High initial uncertainty
	for i := 0; i < 4; i++ {
		kf.P[i][i] = 1000.0
	}

	// Process noise for a one-frame step
	dt := 1.0
	q := 0.5
	kf.Q = [4][4]float64{
		{q * dt * dt * dt * dt / 4, 0, q * dt * dt * dt / 2, 0},
		{0, q * dt * dt * dt * dt / 4, 0, q * dt * dt * dt / 2},
		{q * dt * dt * dt / 2, 0, q * dt * dt, 0},
		{0, q * dt * dt * dt / 2, 0, q * dt * dt},
	}

	// Measurement noise: blob centroids jitter by a few pixels
	kf.R = [2][2]float64{
		{10.0, 0},
		{0, 10.0},
	}

	return kf
}

// Update updates the filter with a measurement taken dtFrames after the
// previous one and returns the filtered position and velocity.
func (kf *KalmanFilter) Update(x, y float64, dtFrames float64) (float64, float64, float64, float64) {
	if !kf.initialized {
		kf.state = [4]float64{x, y, 0, 0}
		kf.initialized = true
		return x, y, 0, 0
	}

	dt := dtFrames
	if dt < 1 {
		dt = 1
	}

	// Predict step
	F := [4][4]float64{
		{1, 0, dt, 0},
		{0, 1, 0, dt},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}

	newState := [4]float64{
		kf.state[0] + kf.state[2]*dt,
		kf.state[1] + kf.state[3]*dt,
		kf.state[2],
		kf.state[3],
	}

	newP := kf.predictCovariance(F)

	// Update step
	H := [2][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}

	innovation := [2]float64{
		x - newState[0],
		y - newState[1],
	}

	S := kf.calculateInnovationCovariance(H, newP)
	K := kf.calculateKalmanGain(H, newP, S)

	for i := 0; i < 4; i++ {
		kf.state[i] = newState[i] + K[0][i]*innovation[0] + K[1][i]*innovation[1]
	}

	kf.updateCovariance(K, H, newP)

	return kf.state[0], kf.state[1], kf.state[2], kf.state[3]
}

// Predict returns the extrapolated position dtFrames ahead without
// consuming a measurement.
func (kf *KalmanFilter) Predict(dtFrames float64) (float64, float64, float64, float64) {
	if !kf.initialized {
		return 0, 0, 0, 0
	}

	x := kf.state[0] + kf.state[2]*dtFrames
	y := kf.state[1] + kf.state[3]*dtFrames

	return x, y, kf.state[2], kf.state[3]
}

// predictCovariance computes P = F * P * F' + Q.
func (kf *KalmanFilter) predictCovariance(F [4][4]float64) [4][4]float64 {
	var newP [4][4]float64

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 4; l++ {
					sum += F[i][k] * kf.P[k][l] * F[j][l]
				}
			}
			newP[i][j] = sum + kf.Q[i][j]
		}
	}

	return newP
}

// calculateInnovationCovariance computes S = H * P * H' + R.
func (kf *KalmanFilter) calculateInnovationCovariance(H [2][4]float64, P [4][4]float64) [2][2]float64 {
	var S [2][2]float64

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 4; l++ {
					sum += H[i][k] * P[k][l] * H[j][l]
				}
			}
			S[i][j] = sum + kf.R[i][j]
		}
	}

	return S
}

// calculateKalmanGain computes K = P * H' * inv(S).
func (kf *KalmanFilter) calculateKalmanGain(H [2][4]float64, P [4][4]float64, S [2][2]float64) [2][4]float64 {
	var K [2][4]float64

	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 2; l++ {
					sum += P[j][k] * H[l][k] * (1.0 / S[i][i])
				}
			}
			K[i][j] = sum
		}
	}

	return K
}

// updateCovariance computes P = (I - K*H) * P.
func (kf *KalmanFilter) updateCovariance(K [2][4]float64, H [2][4]float64, P [4][4]float64) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				for l := 0; l < 4; l++ {
					sum += K[k][i] * H[k][l] * P[l][j]
				}
			}
			kf.P[i][j] = P[i][j] - sum
		}
	}
}

// GetVelocity returns the current velocity estimate in pixels per frame.
func (kf *KalmanFilter) GetVelocity() (float64, float64) {
	if !kf.initialized {
		return 0, 0
	}
	return kf.state[2], kf.state[3]
}

// GetPosition returns the current position estimate.
func (kf *KalmanFilter) GetPosition() (float64, float64) {
	if !kf.initialized {
		return 0, 0
	}
	return kf.state[0], kf.state[1]
}

// Reset clears the filter state.
func (kf *KalmanFilter) Reset() {
	kf.initialized = false
	for i := 0; i < 4; i++ {
		kf.state[i] = 0
		for j := 0; j < 4; j++ {
			kf.P[i][j] = 0
		}
		kf.P[i][i] = 1000.0
	}
}
