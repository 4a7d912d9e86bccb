package transform

import (
	"sync"
)

// CalibrationState latches the first valid intrinsics it is given and is immutable afterwards.
// Frames that arrive before the latch closes are expected to be dropped by the caller.
type CalibrationState struct {
	mu         sync.RWMutex
	ready      bool
	intrinsics PinholeCameraIntrinsics
}

// NewCalibrationState returns an unlatched state.
func NewCalibrationState() *CalibrationState {
	return &CalibrationState{}
}

// NewReadyCalibrationState returns a state already latched with params.
func NewReadyCalibrationState(params *PinholeCameraIntrinsics) (*CalibrationState, error) {
	cs := NewCalibrationState()
	if _, err := cs.Latch(params); err != nil {
		return nil, err
	}
	return cs, nil
}

// Latch stores params if nothing has been latched yet. It reports whether this call latched.
// Invalid intrinsics are rejected and leave the state unchanged.
func (cs *CalibrationState) Latch(params *PinholeCameraIntrinsics) (bool, error) {
	if err := params.CheckValid(); err != nil {
		return false, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.ready {
		return false, nil
	}
	cs.intrinsics = *params
	cs.ready = true
	return true, nil
}

// Ready returns whether intrinsics have been latched.
func (cs *CalibrationState) Ready() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.ready
}

// Intrinsics returns a copy of the latched intrinsics, or ErrNoIntrinsics before the latch.
func (cs *CalibrationState) Intrinsics() (*PinholeCameraIntrinsics, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if !cs.ready {
		return nil, NewNoIntrinsicsError("calibration not received yet")
	}
	params := cs.intrinsics
	return &params, nil
}
