package policies

import (
	"fmt"
	"math"
	"strings"

	"github.com/zeu5/robot-goal-env/types"
)

// Discrete moves of the gripper used by the tabular policies: one unit step
// along a positive or negative axis, or staying put.
var directionKeys = []string{"+x", "-x", "+y", "-y", "+z", "-z", "stay"}

// directionAction turns a direction key into an action of the space. Only
// the first three components move, the rest stay at zero.
func directionAction(key string, space *types.Box) []float64 {
	action := make([]float64, space.Shape())
	if key == "stay" || len(action) < 3 {
		return space.Clip(action)
	}
	axis := int(key[1] - 'x')
	if key[0] == '+' {
		action[axis] = 1
	} else {
		action[axis] = -1
	}
	return space.Clip(action)
}

// DirectionKey is the inverse of directionAction for arbitrary actions: the
// dominant axis of the first three components.
func DirectionKey(action []float64) string {
	best, bestAbs := -1, 0.0
	for i := 0; i < 3 && i < len(action); i++ {
		if a := math.Abs(action[i]); a > bestAbs {
			best, bestAbs = i, a
		}
	}
	if best < 0 {
		return "stay"
	}
	sign := "+"
	if action[best] < 0 {
		sign = "-"
	}
	return sign + string(rune('x'+best))
}

// CellKey discretizes the offset from the achieved to the desired goal into
// cubes of side cell.
func CellKey(obs *types.Observation, cell float64) string {
	parts := make([]string, len(obs.DesiredGoal))
	for i := range obs.DesiredGoal {
		d := obs.DesiredGoal[i]
		if i < len(obs.AchievedGoal) {
			d -= obs.AchievedGoal[i]
		}
		parts[i] = fmt.Sprintf("%d", int(math.Floor(d/cell)))
	}
	return strings.Join(parts, ",")
}
