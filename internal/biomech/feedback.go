package biomech

import (
	"fmt"

	"github.com/swingsense/backend/internal/analysis"
)

var feedbackMessages = map[string]string{
	"poor_posture":        "Check your posture: hinge from the hips and keep your back straight at address.",
	"locked_knees":        "Soften your knees at address; locked knees restrict your turn.",
	"flat_shoulder_plane": "Your shoulder turn is too flat; feel the lead shoulder work down and under.",
	"short_backswing":     "Complete your shoulder turn; your backswing is cutting off early.",
	"excessive_sway":      "You're swaying off the ball; turn around your trail hip instead of sliding.",
	"head_movement":       "Keep your head steady through the swing.",
}

// FeedbackGenerator maps filtered faults to coaching text. Faults arrive
// ordered most severe first and messages keep that order.
type FeedbackGenerator struct{}

// NewFeedbackGenerator returns the default template-based generator.
func NewFeedbackGenerator() *FeedbackGenerator { return &FeedbackGenerator{} }

// Generate returns one message per fault.
func (fg *FeedbackGenerator) Generate(faults []analysis.Fault) []string {
	messages := make([]string, 0, len(faults))
	for _, f := range faults {
		if msg, ok := feedbackMessages[f.Name]; ok {
			messages = append(messages, msg)
			continue
		}
		messages = append(messages, fmt.Sprintf("Work on correcting %s.", f.Name))
	}
	return messages
}
