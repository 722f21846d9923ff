package services

import "print-gateway/internal/models"

// transitions is the single source of truth for which status may follow which.
var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusCreated:  {models.JobStatusPaid, models.JobStatusCancelled, models.JobStatusExpired},
	models.JobStatusPaid:     {models.JobStatusPrinting, models.JobStatusDone, models.JobStatusFailed},
	models.JobStatusPrinting: {models.JobStatusDone, models.JobStatusFailed},
}

// CanTransition reports whether to is forward-reachable from from in one or more steps.
func CanTransition(from, to models.JobStatus) bool {
	if from == to {
		return false
	}
	seen := map[models.JobStatus]bool{from: true}
	queue := []models.JobStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Passed reports whether current is target or somewhere after it.
func Passed(current, target models.JobStatus) bool {
	return current == target || CanTransition(target, current)
}

func IsTerminal(s models.JobStatus) bool {
	return len(transitions[s]) == 0
}
