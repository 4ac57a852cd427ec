package orchestrator

// Apologies sent in place of a result. They never carry error detail.
const (
	ApologyGeneric  = "Sorry, something went wrong. Please try again in a few moments."
	ApologySubmit   = "Sorry, we could not evaluate your answer. Please try again."
	ApologyPlan     = "Sorry, we could not create your study plan. Please try again."
	ApologyProgress = "Sorry, we could not load your progress. Please try again."
)

func apologyFor(workflow string) string {
	switch workflow {
	case workflowSubmit:
		return ApologySubmit
	case workflowPlan:
		return ApologyPlan
	case workflowProgress:
		return ApologyProgress
	default:
		return ApologyGeneric
	}
}
