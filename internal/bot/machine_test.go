package bot

import (
	"context"
	"strings"
	"testing"

	"genbot/internal/history"
	"genbot/internal/leonardo"
)

type fakeGenerator struct {
	improveResult string
	improveErr    error
	improveCalls  []string

	image       *leonardo.GeneratedImage
	generateErr error

	generateCalls []string
	refCalls      []string
	refURLs       []string
}

func (f *fakeGenerator) ImprovePrompt(_ context.Context, prompt string) (string, error) {
	f.improveCalls = append(f.improveCalls, prompt)
	if f.improveErr != nil {
		return "", f.improveErr
	}
	return f.improveResult, nil
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (*leonardo.GeneratedImage, error) {
	f.generateCalls = append(f.generateCalls, prompt)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.image, nil
}

func (f *fakeGenerator) GenerateWithReference(_ context.Context, prompt, referenceURL string) (*leonardo.GeneratedImage, error) {
	f.refCalls = append(f.refCalls, prompt)
	f.refURLs = append(f.refURLs, referenceURL)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.image, nil
}

type fakeTransport struct {
	texts    []string
	fileURLs map[string]string
	fileErr  error
	fileAsks []string
}

func (f *fakeTransport) SendText(_ context.Context, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, _ int64, _ string, _ string) error {
	return nil
}

func (f *fakeTransport) FileURL(_ context.Context, fileID string) (string, error) {
	f.fileAsks = append(f.fileAsks, fileID)
	if f.fileErr != nil {
		return "", f.fileErr
	}
	return f.fileURLs[fileID], nil
}

type fakeRecorder struct {
	records []*history.Generation
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, gen *history.Generation) error {
	f.records = append(f.records, gen)
	return f.err
}

func testMachine(t *testing.T) (*Machine, *Store, *fakeGenerator, *fakeTransport, *fakeRecorder) {
	t.Helper()
	store := NewStore()
	gen := &fakeGenerator{
		improveResult: "a detailed pixel-art frog astronaut floating in space",
		image:         &leonardo.GeneratedImage{URL: "http://img/1.png"},
	}
	transport := &fakeTransport{fileURLs: map[string]string{}}
	recorder := &fakeRecorder{}
	return NewMachine(store, gen, transport, recorder, nil), store, gen, transport, recorder
}

const testUser, testChat = int64(7), int64(70)

func send(t *testing.T, m *Machine, text string) []Outbound {
	t.Helper()
	return m.HandleMessage(context.Background(), testUser, testChat, Message{Text: text})
}

func sendPhoto(t *testing.T, m *Machine, photos ...Photo) []Outbound {
	t.Helper()
	return m.HandleMessage(context.Background(), testUser, testChat, Message{Photos: photos})
}

func TestHappyPathWithoutReference(t *testing.T) {
	m, store, gen, transport, recorder := testMachine(t)

	// Initial description triggers refinement and the 3-way choice.
	out := send(t, m, "a pixel-art frog astronaut")
	if len(out) != 1 || !strings.Contains(out[0].Text, "a pixel-art frog astronaut") ||
		!strings.Contains(out[0].Text, gen.improveResult) {
		t.Fatalf("initial prompt reply = %+v, want both prompts presented", out)
	}
	if got := store.Get(testUser).State; got != StateChoosingPrompt {
		t.Fatalf("state = %v, want %v", got, StateChoosingPrompt)
	}

	// Use the enhanced prompt.
	out = send(t, m, "1")
	if len(out) != 1 || out[0].Text != referenceQuestionText {
		t.Fatalf("choice reply = %+v, want reference question", out)
	}
	sess := store.Get(testUser)
	if sess.State != StateReferenceChoice {
		t.Fatalf("state = %v, want %v", sess.State, StateReferenceChoice)
	}
	if sess.FinalPrompt != gen.improveResult {
		t.Errorf("FinalPrompt = %q, want enhanced prompt", sess.FinalPrompt)
	}

	// No reference: generation runs and the follow-up is offered.
	out = send(t, m, "2")
	if len(out) != 2 {
		t.Fatalf("generation replies = %+v, want photo plus follow-up", out)
	}
	if out[0].PhotoURL != "http://img/1.png" {
		t.Errorf("photo URL = %q, want http://img/1.png", out[0].PhotoURL)
	}
	if out[1].Text != iterateFollowupText {
		t.Errorf("follow-up = %q, want iterate choices", out[1].Text)
	}

	sess = store.Get(testUser)
	if sess.State != StateIteratingImage {
		t.Errorf("state = %v, want %v", sess.State, StateIteratingImage)
	}
	if len(sess.GeneratedImages) != 1 || sess.GeneratedImages[0] != "http://img/1.png" {
		t.Errorf("GeneratedImages = %v, want the generated URL", sess.GeneratedImages)
	}

	// The interim progress notice went out before the blocking call.
	if len(transport.texts) != 1 || transport.texts[0] != processingText {
		t.Errorf("progress notices = %v, want the scratch-path notice", transport.texts)
	}
	if len(gen.generateCalls) != 1 || gen.generateCalls[0] != gen.improveResult {
		t.Errorf("generate calls = %v, want one call with the final prompt", gen.generateCalls)
	}
	if len(recorder.records) != 1 || recorder.records[0].ImageURL != "http://img/1.png" {
		t.Errorf("history records = %v, want one record", recorder.records)
	}
}

func TestPromptTooLongReprompts(t *testing.T) {
	m, store, gen, _, _ := testMachine(t)
	gen.improveErr = &leonardo.PromptTooLongError{Length: 250}

	out := send(t, m, strings.Repeat("x", 250))
	if len(out) != 1 || !strings.Contains(out[0].Text, "250") {
		t.Fatalf("reply = %+v, want the character count surfaced", out)
	}
	if got := store.Get(testUser).State; got != StateInitialPrompt {
		t.Errorf("state = %v, want %v", got, StateInitialPrompt)
	}
}

func TestRefinementFailureKeepsInitialState(t *testing.T) {
	m, store, gen, _, _ := testMachine(t)
	gen.improveErr = leonardo.ErrRefinementFailed

	out := send(t, m, "a frog")
	if len(out) != 1 || out[0].Text != enhanceFailedText {
		t.Fatalf("reply = %+v, want refinement failure text", out)
	}
	sess := store.Get(testUser)
	if sess.State != StateInitialPrompt {
		t.Errorf("state = %v, want %v", sess.State, StateInitialPrompt)
	}
	if sess.OriginalPrompt != "a frog" {
		t.Errorf("OriginalPrompt = %q, want stored despite failure", sess.OriginalPrompt)
	}
}

func TestOriginalPromptSurvivesByteForByte(t *testing.T) {
	m, store, gen, _, _ := testMachine(t)
	original := "a frog éø EXACTLY as typed\n"

	// First refinement attempt fails outright.
	gen.improveErr = leonardo.ErrRefinementUnavailable
	send(t, m, original)

	// User retries the same prompt; refinement now succeeds, and they pick
	// their original anyway.
	gen.improveErr = nil
	send(t, m, original)
	send(t, m, "3")

	sess := store.Get(testUser)
	if sess.State != StateReferenceChoice {
		t.Fatalf("state = %v, want %v", sess.State, StateReferenceChoice)
	}
	if sess.FinalPrompt != original {
		t.Errorf("FinalPrompt = %q, want byte-for-byte original %q", sess.FinalPrompt, original)
	}
}

func TestRetryEnhancementUsesOriginalPrompt(t *testing.T) {
	m, store, gen, _, _ := testMachine(t)

	send(t, m, "a frog")
	out := send(t, m, "2")

	if len(gen.improveCalls) != 2 {
		t.Fatalf("improve calls = %v, want two", gen.improveCalls)
	}
	if gen.improveCalls[1] != "a frog" {
		t.Errorf("second improve input = %q, want the original prompt, not the enhanced text", gen.improveCalls[1])
	}
	if got := store.Get(testUser).State; got != StateChoosingPrompt {
		t.Errorf("state = %v, want %v", got, StateChoosingPrompt)
	}
	if len(out) != 1 || !strings.Contains(out[0].Text, "Would you like to") {
		t.Errorf("reply = %+v, want a fresh 3-way choice", out)
	}
}

func TestInvalidChoicesLeaveStateAndSessionUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		arrange func(t *testing.T, m *Machine)
		state   State
		retry   string
	}{
		{
			name: "choosing prompt",
			arrange: func(t *testing.T, m *Machine) {
				send(t, m, "a frog")
			},
			state: StateChoosingPrompt,
			retry: promptChoiceRetryText,
		},
		{
			name: "reference choice",
			arrange: func(t *testing.T, m *Machine) {
				send(t, m, "a frog")
				send(t, m, "1")
			},
			state: StateReferenceChoice,
			retry: referenceRetryText,
		},
		{
			name: "iterating image",
			arrange: func(t *testing.T, m *Machine) {
				send(t, m, "a frog")
				send(t, m, "1")
				send(t, m, "2")
			},
			state: StateIteratingImage,
			retry: iterateRetryText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, _, _, _ := testMachine(t)
			tt.arrange(t, m)

			before := *store.Get(testUser)
			for i := 0; i < 2; i++ {
				out := send(t, m, "7")
				if len(out) != 1 || out[0].Text != tt.retry {
					t.Fatalf("invalid input reply #%d = %+v, want %q", i+1, out, tt.retry)
				}
			}
			after := store.Get(testUser)
			if after.State != tt.state {
				t.Errorf("state = %v, want unchanged %v", after.State, tt.state)
			}
			if after.OriginalPrompt != before.OriginalPrompt ||
				after.EnhancedPrompt != before.EnhancedPrompt ||
				after.FinalPrompt != before.FinalPrompt {
				t.Errorf("session mutated by invalid input: before %+v after %+v", before, *after)
			}
		})
	}
}

func TestReferenceFlow(t *testing.T) {
	m, store, gen, transport, _ := testMachine(t)
	transport.fileURLs["big"] = "http://files/big.jpg"

	send(t, m, "a frog")
	send(t, m, "1")
	out := send(t, m, "1")
	if len(out) != 1 || out[0].Text != uploadPromptText {
		t.Fatalf("reply = %+v, want upload prompt", out)
	}
	if got := store.Get(testUser).State; got != StateAwaitingReference {
		t.Fatalf("state = %v, want %v", got, StateAwaitingReference)
	}

	out = sendPhoto(t, m,
		Photo{FileID: "small", Width: 90, Height: 60},
		Photo{FileID: "big", Width: 1280, Height: 960},
	)

	// Highest-resolution variant wins.
	if len(transport.fileAsks) != 1 || transport.fileAsks[0] != "big" {
		t.Errorf("resolved file ids = %v, want the largest variant", transport.fileAsks)
	}
	if len(gen.refCalls) != 1 {
		t.Fatalf("reference generations = %v, want one", gen.refCalls)
	}
	if gen.refURLs[0] != "http://files/big.jpg" {
		t.Errorf("reference URL = %q, want resolved file URL", gen.refURLs[0])
	}
	if len(gen.generateCalls) != 0 {
		t.Errorf("scratch generations = %v, want none", gen.generateCalls)
	}

	sess := store.Get(testUser)
	if sess.State != StateIteratingImage {
		t.Errorf("state = %v, want %v", sess.State, StateIteratingImage)
	}
	if sess.Reference == nil || sess.Reference.FileID != "big" {
		t.Errorf("Reference = %+v, want the stored upload", sess.Reference)
	}
	if len(out) != 2 || out[0].PhotoURL != "http://img/1.png" {
		t.Errorf("replies = %+v, want generated photo", out)
	}

	// The reference-path progress notice was used.
	if transport.texts[len(transport.texts)-1] != processingReferenceText {
		t.Errorf("progress notice = %q, want reference-path notice", transport.texts[len(transport.texts)-1])
	}
}

func TestTextWhileAwaitingReferenceReasks(t *testing.T) {
	m, store, _, _, _ := testMachine(t)
	send(t, m, "a frog")
	send(t, m, "1")
	send(t, m, "1")

	out := send(t, m, "here you go")
	if len(out) != 1 || out[0].Text != uploadPromptText {
		t.Errorf("reply = %+v, want upload prompt re-sent", out)
	}
	if got := store.Get(testUser).State; got != StateAwaitingReference {
		t.Errorf("state = %v, want unchanged", got)
	}
}

func TestReferenceWithoutFinalPromptRestartsFlow(t *testing.T) {
	m, store, gen, _, _ := testMachine(t)

	// Force the inconsistent shape directly: awaiting a reference with no
	// chosen prompt.
	sess := store.Get(testUser)
	sess.State = StateAwaitingReference

	out := sendPhoto(t, m, Photo{FileID: "f", Width: 100, Height: 100})
	if len(out) != 1 || out[0].Text != lostTrackText {
		t.Fatalf("reply = %+v, want lost-track text", out)
	}
	if got := store.Get(testUser).State; got != StateInitialPrompt {
		t.Errorf("state = %v, want %v", got, StateInitialPrompt)
	}
	if len(gen.refCalls)+len(gen.generateCalls) != 0 {
		t.Error("no generation should run without a final prompt")
	}
}

func TestReferenceResolutionFailureReasks(t *testing.T) {
	m, store, gen, transport, _ := testMachine(t)
	transport.fileErr = context.DeadlineExceeded

	send(t, m, "a frog")
	send(t, m, "1")
	send(t, m, "1")
	out := sendPhoto(t, m, Photo{FileID: "f", Width: 100, Height: 100})

	if len(out) != 1 || out[0].Text != referenceFetchFailedText {
		t.Fatalf("reply = %+v, want fetch-failed re-ask", out)
	}
	if got := store.Get(testUser).State; got != StateAwaitingReference {
		t.Errorf("state = %v, want unchanged", got)
	}
	if len(gen.refCalls) != 0 {
		t.Error("generation must not run when file resolution fails")
	}
}

func TestGenerationFailureOffersRetry(t *testing.T) {
	m, store, gen, _, recorder := testMachine(t)
	gen.generateErr = leonardo.ErrTimedOut

	send(t, m, "a frog")
	send(t, m, "1")
	out := send(t, m, "2")
	if len(out) != 1 || out[0].Text != generationFailedText {
		t.Fatalf("reply = %+v, want failure text with retry options", out)
	}
	if got := store.Get(testUser).State; got != StateIteratingImage {
		t.Fatalf("state = %v, want %v", got, StateIteratingImage)
	}
	if len(recorder.records) != 0 {
		t.Error("failed generations must not be recorded")
	}

	// Retry succeeds with the same final prompt.
	gen.generateErr = nil
	out = send(t, m, "1")
	if len(out) != 2 || out[0].PhotoURL != "http://img/1.png" {
		t.Fatalf("retry replies = %+v, want generated photo", out)
	}
	if len(gen.generateCalls) != 2 || gen.generateCalls[0] != gen.generateCalls[1] {
		t.Errorf("generate calls = %v, want same prompt twice", gen.generateCalls)
	}
}

func TestModifyPromptResetsKeepingOriginal(t *testing.T) {
	m, store, _, transport, _ := testMachine(t)
	transport.fileURLs["f"] = "http://files/f.jpg"

	send(t, m, "a frog")
	send(t, m, "1")
	send(t, m, "1")
	sendPhoto(t, m, Photo{FileID: "f", Width: 100, Height: 100})

	out := send(t, m, "2")
	if len(out) != 1 || out[0].Text != newPromptText {
		t.Fatalf("reply = %+v, want new-prompt request", out)
	}

	sess := store.Get(testUser)
	if sess.State != StateInitialPrompt {
		t.Errorf("state = %v, want %v", sess.State, StateInitialPrompt)
	}
	if sess.OriginalPrompt != "a frog" {
		t.Errorf("OriginalPrompt = %q, want preserved", sess.OriginalPrompt)
	}
	if sess.EnhancedPrompt != "" || sess.FinalPrompt != "" || sess.Reference != nil || sess.GeneratedImages != nil {
		t.Errorf("reset left stale data: %+v", sess)
	}
}

func TestFinalPromptInvariantAcrossStates(t *testing.T) {
	m, store, _, transport, _ := testMachine(t)
	transport.fileURLs["f"] = "http://files/f.jpg"

	steps := []func() []Outbound{
		func() []Outbound { return send(t, m, "a frog") },
		func() []Outbound { return send(t, m, "1") },
		func() []Outbound { return send(t, m, "1") },
		func() []Outbound { return sendPhoto(t, m, Photo{FileID: "f", Width: 100, Height: 100}) },
		func() []Outbound { return send(t, m, "1") },
	}

	gated := map[State]bool{
		StateReferenceChoice:   true,
		StateAwaitingReference: true,
		StateGeneratingImage:   true,
		StateIteratingImage:    true,
	}

	for i, step := range steps {
		step()
		sess := store.Get(testUser)
		if gated[sess.State] && sess.FinalPrompt == "" {
			t.Errorf("step %d: state %v with empty FinalPrompt", i, sess.State)
		}
	}
}

func TestCommands(t *testing.T) {
	m, store, _, _, _ := testMachine(t)
	ctx := context.Background()

	out := m.HandleCommand(ctx, testUser, testChat, "start")
	if len(out) != 1 || out[0].Text != welcomeText {
		t.Fatalf("start reply = %+v, want welcome", out)
	}
	if got := store.Get(testUser).State; got != StateInitialPrompt {
		t.Errorf("state after /start = %v, want %v", got, StateInitialPrompt)
	}

	// Cancel discards everything, mid-flow.
	send(t, m, "a frog")
	send(t, m, "1")
	out = m.HandleCommand(ctx, testUser, testChat, "cancel")
	if len(out) != 1 || out[0].Text != cancelledText {
		t.Fatalf("cancel reply = %+v, want cancelled text", out)
	}
	if got := store.Get(testUser); got.State != StateInitialPrompt || got.FinalPrompt != "" {
		t.Errorf("session after /cancel = %+v, want fresh", got)
	}

	if out := m.HandleCommand(ctx, testUser, testChat, "help"); out != nil {
		t.Errorf("unknown command reply = %+v, want nil", out)
	}
}

func TestNewPromptClearsReference(t *testing.T) {
	m, store, _, transport, _ := testMachine(t)
	transport.fileURLs["f"] = "http://files/f.jpg"

	send(t, m, "a frog")
	send(t, m, "1")
	send(t, m, "1")
	sendPhoto(t, m, Photo{FileID: "f", Width: 100, Height: 100})
	send(t, m, "2") // modify prompt

	// The next flow must not inherit the old reference image.
	send(t, m, "a cat in a raincoat")
	sess := store.Get(testUser)
	if sess.Reference != nil {
		t.Errorf("Reference = %+v, want cleared for the new flow", sess.Reference)
	}
}
