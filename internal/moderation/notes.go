package moderation

// encouragements is the fixed catalog of supportive notes occasionally
// attached to accepted messages.
var encouragements = []string{
	"Great teamwork!",
	"Love the positive energy!",
	"Keep up the collaboration!",
	"Awesome communication!",
	"That's the spirit!",
	"Fantastic attitude!",
	"You're doing great!",
	"Keep it up!",
}

// suggestions is the fixed catalog of rewrite suggestions returned to the
// sender when a message is rejected.
var suggestions = []string{
	"Let's keep our conversation positive and constructive!",
	"How about rephrasing that in a more positive way?",
	"Let's maintain a respectful tone!",
	"Remember, we're all here to help each other!",
	"Let's keep things friendly and supportive!",
}

// Encouragements returns the encouragement catalog. Exposed for tests that
// assert exact catalog membership.
func Encouragements() []string {
	out := make([]string, len(encouragements))
	copy(out, encouragements)
	return out
}

// Suggestions returns the suggestion catalog. Exposed for tests that assert
// exact catalog membership.
func Suggestions() []string {
	out := make([]string, len(suggestions))
	copy(out, suggestions)
	return out
}
