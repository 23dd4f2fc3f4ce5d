// Package gamification derives hunter levels from accumulated points.
package gamification

const (
	Novato     = "Cazador Novato"
	Intermedio = "Cazador Intermedio"
	Experto    = "Cazador Experto"
	Maestro    = "Maestro Cazador"
)

// PointsPerAntExpense is awarded for every stored ant expense.
const PointsPerAntExpense int64 = 10

type threshold struct {
	min   int64
	level string
}

// descending by min
var thresholds = []threshold{
	{1000, Maestro},
	{500, Experto},
	{200, Intermedio},
	{0, Novato},
}

// LevelFor is a pure function of points. Negative input maps to Novato.
func LevelFor(points int64) string {
	for _, th := range thresholds {
		if points >= th.min {
			return th.level
		}
	}
	return Novato
}

// Progress reports the next level and how many points remain to reach it.
// At the top level next is empty and remaining is zero.
func Progress(points int64) (next string, remaining int64) {
	for i := len(thresholds) - 1; i >= 0; i-- {
		if points < thresholds[i].min {
			return thresholds[i].level, thresholds[i].min - points
		}
	}
	return "", 0
}
