package workflow

import (
	"fmt"

	"github.com/harrison/maestro/internal/models"
)

// ReplanController decides when the current plan should be abandoned in
// favor of a freshly generated one.
type ReplanController struct {
	// ConfidenceThreshold is the rolling-confidence floor below which the
	// current approach is considered failing.
	ConfidenceThreshold float64
	// Window bounds how many recent attempts feed the rolling confidence.
	Window int
	// CountNonBlocking includes failures of non-blocking tasks in the
	// rolling confidence.
	CountNonBlocking bool
}

// Decide evaluates the three replan triggers: a recoverable failure that
// exhausted its retries, an unrecoverable failure on a blocking task, and a
// rolling confidence below the threshold. fb may be nil when the task
// succeeded but with low confidence.
func (c *ReplanController) Decide(state *State, task models.Task, fb *models.ErrorFeedback, retriesExhausted bool) models.ReplanDecision {
	rolling := state.RollingConfidence(c.Window, c.CountNonBlocking)

	if fb != nil {
		if retriesExhausted && fb.RetryRecommended {
			return models.ReplanDecision{
				ShouldReplan: true,
				Reason:       fmt.Sprintf("task %s exhausted retries on a recoverable %s failure", task.ID, fb.Category),
				Confidence:   rolling,
			}
		}
		if !fb.Category.Recoverable() && task.Blocking {
			return models.ReplanDecision{
				ShouldReplan: true,
				Reason:       fmt.Sprintf("unrecoverable %s failure on blocking task %s", fb.Category, task.ID),
				Confidence:   rolling,
			}
		}
	}

	if rolling < c.ConfidenceThreshold {
		return models.ReplanDecision{
			ShouldReplan: true,
			Reason:       fmt.Sprintf("rolling confidence %.2f below threshold %.2f", rolling, c.ConfidenceThreshold),
			Confidence:   rolling,
		}
	}

	return models.ReplanDecision{Confidence: rolling}
}
