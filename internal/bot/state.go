package bot

// State is the conversation phase a session is in. Exactly one state is
// active per session; every inbound message is routed to the handler for the
// current state and nothing else.
type State int

const (
	// StateInitialPrompt waits for the user's description of what to generate.
	StateInitialPrompt State = iota
	// StateChoosingPrompt waits for the 3-way choice between the enhanced
	// prompt, another enhancement attempt, or the original prompt.
	StateChoosingPrompt
	// StateReferenceChoice waits for the yes/no on supplying a reference image.
	StateReferenceChoice
	// StateAwaitingReference waits for the reference photo upload.
	StateAwaitingReference
	// StateGeneratingImage covers the in-flight generation call. It is not
	// user-driven; a message landing here re-runs generation.
	StateGeneratingImage
	// StateIteratingImage waits for the post-generation retry/modify choice.
	StateIteratingImage
)

func (s State) String() string {
	switch s {
	case StateInitialPrompt:
		return "initial_prompt"
	case StateChoosingPrompt:
		return "choosing_prompt"
	case StateReferenceChoice:
		return "reference_choice"
	case StateAwaitingReference:
		return "awaiting_reference"
	case StateGeneratingImage:
		return "generating_image"
	case StateIteratingImage:
		return "iterating_image"
	default:
		return "unknown"
	}
}
