package bot

import "testing"

func TestStore_GetCreatesInitialSession(t *testing.T) {
	store := NewStore()

	sess := store.Get(1)
	if sess.State != StateInitialPrompt {
		t.Errorf("new session state = %v, want %v", sess.State, StateInitialPrompt)
	}
	if sess.UserID != 1 {
		t.Errorf("new session UserID = %d, want 1", sess.UserID)
	}

	sess.OriginalPrompt = "a frog"
	if got := store.Get(1); got.OriginalPrompt != "a frog" {
		t.Error("Get() should return the same session on repeat lookup")
	}
}

func TestStore_IsolatesUsers(t *testing.T) {
	store := NewStore()
	store.Get(1).OriginalPrompt = "a frog"

	if got := store.Get(2).OriginalPrompt; got != "" {
		t.Errorf("user 2 OriginalPrompt = %q, want empty", got)
	}
}

func TestStore_ResetPreservesOriginal(t *testing.T) {
	store := NewStore()
	sess := store.Get(1)
	sess.ChatID = 99
	sess.State = StateIteratingImage
	sess.OriginalPrompt = "a frog"
	sess.EnhancedPrompt = "a detailed frog"
	sess.FinalPrompt = "a detailed frog"
	sess.Reference = &ReferenceImage{FileID: "f1", FileURL: "http://file/1"}
	sess.GeneratedImages = []string{"http://img/1.png"}

	fresh := store.Reset(1, true)

	if fresh.OriginalPrompt != "a frog" {
		t.Errorf("OriginalPrompt = %q, want preserved", fresh.OriginalPrompt)
	}
	if fresh.ChatID != 99 {
		t.Errorf("ChatID = %d, want preserved", fresh.ChatID)
	}
	if fresh.State != StateInitialPrompt {
		t.Errorf("State = %v, want %v", fresh.State, StateInitialPrompt)
	}
	if fresh.EnhancedPrompt != "" || fresh.FinalPrompt != "" || fresh.Reference != nil || fresh.GeneratedImages != nil {
		t.Errorf("Reset() left stale data: %+v", fresh)
	}
}

func TestStore_ResetWithoutPreserve(t *testing.T) {
	store := NewStore()
	store.Get(1).OriginalPrompt = "a frog"

	fresh := store.Reset(1, false)
	if fresh.OriginalPrompt != "" {
		t.Errorf("OriginalPrompt = %q, want empty", fresh.OriginalPrompt)
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore()
	store.Get(1).OriginalPrompt = "a frog"
	store.Delete(1)

	if got := store.Get(1).OriginalPrompt; got != "" {
		t.Errorf("OriginalPrompt after Delete = %q, want empty", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitialPrompt, "initial_prompt"},
		{StateChoosingPrompt, "choosing_prompt"},
		{StateReferenceChoice, "reference_choice"},
		{StateAwaitingReference, "awaiting_reference"},
		{StateGeneratingImage, "generating_image"},
		{StateIteratingImage, "iterating_image"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
