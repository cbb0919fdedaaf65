package sim

// State is a snapshot of the simulator: time, generalized positions and
// velocities, actuator activations and free-form user data.
type State struct {
	Time float64
	QPos []float64
	QVel []float64
	Act  []float64
	// Mocap positions keyed by body name
	Mocap map[string]Vec3
}

// Copy returns a deep copy, safe to keep while the simulation mutates.
func (s State) Copy() State {
	out := State{
		Time: s.Time,
		QPos: append([]float64(nil), s.QPos...),
		QVel: append([]float64(nil), s.QVel...),
		Act:  append([]float64(nil), s.Act...),
	}
	if s.Mocap != nil {
		out.Mocap = make(map[string]Vec3, len(s.Mocap))
		for k, v := range s.Mocap {
			out.Mocap[k] = v
		}
	}
	return out
}
