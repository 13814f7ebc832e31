package completion

// Project maps completed steps to a progress value in [0, 100].
// Callers guarantee totalSteps >= 1.
func Project(completedSteps, totalSteps int) float64 {
	if completedSteps <= 0 {
		return 0
	}
	return min(100, 100*float64(completedSteps)/float64(totalSteps))
}
