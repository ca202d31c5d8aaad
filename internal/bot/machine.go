// Package bot contains the conversation state machine: the per-user session
// store, the transition handlers keyed by conversation state, and the
// dispatcher that serializes message handling per user.
package bot

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"genbot/internal/history"
	"genbot/internal/leonardo"
)

// Generator is the slice of the generation service the machine calls.
type Generator interface {
	ImprovePrompt(ctx context.Context, prompt string) (string, error)
	Generate(ctx context.Context, prompt string) (*leonardo.GeneratedImage, error)
	GenerateWithReference(ctx context.Context, prompt, referenceURL string) (*leonardo.GeneratedImage, error)
}

// Transport is the slice of the chat transport the machine needs: interim
// progress notices and file resolution. Final replies travel back through
// the dispatcher as Outbound values.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Recorder logs completed generations. May be nil; recording failures never
// fail a transition.
type Recorder interface {
	Record(ctx context.Context, gen *history.Generation) error
}

// Photo is one resolution variant of an inbound photo.
type Photo struct {
	FileID string
	Width  int
	Height int
}

// Message is the inbound payload a transition receives.
type Message struct {
	Text   string
	Photos []Photo
}

// Outbound is one reply to send. Either Text or PhotoURL is set.
type Outbound struct {
	Text     string
	PhotoURL string
	Caption  string
}

type Machine struct {
	store     *Store
	generator Generator
	transport Transport
	recorder  Recorder
	logger    *zap.Logger
}

func NewMachine(store *Store, generator Generator, transport Transport, recorder Recorder, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:     store,
		generator: generator,
		transport: transport,
		recorder:  recorder,
		logger:    logger,
	}
}

// HandleCommand processes /start and /cancel, both accepted from any state.
func (m *Machine) HandleCommand(ctx context.Context, userID, chatID int64, command string) []Outbound {
	switch command {
	case "start":
		sess := m.store.Reset(userID, false)
		sess.ChatID = chatID
		m.logger.Info("conversation started", zap.Int64("user_id", userID))
		return []Outbound{{Text: welcomeText}}
	case "cancel":
		m.store.Delete(userID)
		m.logger.Info("conversation cancelled", zap.Int64("user_id", userID))
		return []Outbound{{Text: cancelledText}}
	default:
		return nil
	}
}

// HandleMessage routes msg to the handler for the session's current state.
// The handler mutates the session, possibly blocks on the generation or
// refinement client, and returns the replies to send. The dispatcher
// guarantees this is never invoked concurrently for the same user.
func (m *Machine) HandleMessage(ctx context.Context, userID, chatID int64, msg Message) []Outbound {
	sess := m.store.Get(userID)
	sess.ChatID = chatID

	var out []Outbound
	switch sess.State {
	case StateInitialPrompt:
		out = m.handleInitialPrompt(ctx, sess, msg.Text)
	case StateChoosingPrompt:
		out = m.handlePromptChoice(ctx, sess, msg.Text)
	case StateReferenceChoice:
		out = m.handleReferenceChoice(ctx, sess, msg.Text)
	case StateAwaitingReference:
		out = m.handleReferenceImage(ctx, sess, msg)
	case StateGeneratingImage:
		// Not user-driven; a message landing here re-runs generation.
		out = m.runGeneration(ctx, sess)
	case StateIteratingImage:
		out = m.handleIteration(ctx, sess, msg.Text)
	default:
		m.logger.Error("session in unknown state",
			zap.Int64("user_id", userID),
			zap.Int("state", int(sess.State)))
		sess.State = StateInitialPrompt
		out = []Outbound{{Text: newPromptText}}
	}

	m.store.Set(userID, sess)
	return out
}

// handleInitialPrompt stores the raw description and runs prompt refinement.
// Refinement failures keep the session at StateInitialPrompt so the user can
// simply send another prompt.
func (m *Machine) handleInitialPrompt(ctx context.Context, sess *Session, text string) []Outbound {
	sess.OriginalPrompt = text
	sess.EnhancedPrompt = ""
	sess.FinalPrompt = ""
	sess.Reference = nil
	sess.GeneratedImages = nil

	enhanced, err := m.generator.ImprovePrompt(ctx, text)
	if err != nil {
		var tooLong *leonardo.PromptTooLongError
		if errors.As(err, &tooLong) {
			sess.State = StateInitialPrompt
			return []Outbound{{Text: promptTooLongText(tooLong.Length)}}
		}
		m.logger.Error("prompt refinement failed",
			zap.Int64("user_id", sess.UserID),
			zap.Error(err))
		sess.State = StateInitialPrompt
		return []Outbound{{Text: enhanceFailedText}}
	}

	sess.EnhancedPrompt = enhanced
	sess.State = StateChoosingPrompt
	return []Outbound{{Text: promptChoiceText(sess.OriginalPrompt, enhanced)}}
}

func (m *Machine) handlePromptChoice(ctx context.Context, sess *Session, choice string) []Outbound {
	switch choice {
	case "1", "3":
		if choice == "1" {
			sess.FinalPrompt = sess.EnhancedPrompt
		} else {
			sess.FinalPrompt = sess.OriginalPrompt
		}
		sess.State = StateReferenceChoice
		return []Outbound{{Text: referenceQuestionText}}
	case "2":
		// Another enhancement runs on the ORIGINAL prompt, not on the
		// already-enhanced text.
		return m.handleInitialPrompt(ctx, sess, sess.OriginalPrompt)
	default:
		return []Outbound{{Text: promptChoiceRetryText}}
	}
}

func (m *Machine) handleReferenceChoice(ctx context.Context, sess *Session, choice string) []Outbound {
	switch choice {
	case "1":
		sess.State = StateAwaitingReference
		return []Outbound{{Text: uploadPromptText}}
	case "2":
		return m.runGeneration(ctx, sess)
	default:
		return []Outbound{{Text: referenceRetryText}}
	}
}

// handleReferenceImage picks the highest-resolution variant of the uploaded
// photo, resolves its retrievable URL, and starts generation. A photo
// arriving for a session without a final prompt restarts the flow instead of
// crashing.
func (m *Machine) handleReferenceImage(ctx context.Context, sess *Session, msg Message) []Outbound {
	if len(msg.Photos) == 0 {
		return []Outbound{{Text: uploadPromptText}}
	}

	if sess.FinalPrompt == "" {
		m.logger.Warn("reference uploaded without a final prompt",
			zap.Int64("user_id", sess.UserID))
		sess.State = StateInitialPrompt
		return []Outbound{{Text: lostTrackText}}
	}

	photo := largestPhoto(msg.Photos)
	fileURL, err := m.transport.FileURL(ctx, photo.FileID)
	if err != nil {
		m.logger.Error("reference file resolution failed",
			zap.Int64("user_id", sess.UserID),
			zap.String("file_id", photo.FileID),
			zap.Error(err))
		return []Outbound{{Text: referenceFetchFailedText}}
	}

	sess.Reference = &ReferenceImage{
		FileID:  photo.FileID,
		FileURL: fileURL,
	}
	return m.runGeneration(ctx, sess)
}

func (m *Machine) handleIteration(ctx context.Context, sess *Session, choice string) []Outbound {
	switch choice {
	case "1":
		return m.runGeneration(ctx, sess)
	case "2":
		fresh := m.store.Reset(sess.UserID, true)
		*sess = *fresh
		return []Outbound{{Text: newPromptText}}
	default:
		return []Outbound{{Text: iterateRetryText}}
	}
}

// runGeneration is the single generation path serving both the no-reference
// and reference flows. It sends an interim progress notice, blocks on the
// generation client (the dominant suspension point, up to ~60 seconds), and
// lands the session at StateIteratingImage whether generation succeeded or
// failed, so failure offers retry/modify from there.
func (m *Machine) runGeneration(ctx context.Context, sess *Session) []Outbound {
	sess.State = StateGeneratingImage

	notice := processingText
	if sess.Reference != nil {
		notice = processingReferenceText
	}
	if err := m.transport.SendText(ctx, sess.ChatID, notice); err != nil {
		m.logger.Warn("failed to send progress notice",
			zap.Int64("user_id", sess.UserID),
			zap.Error(err))
	}

	start := time.Now()
	var (
		img *leonardo.GeneratedImage
		err error
	)
	if sess.Reference != nil {
		img, err = m.generator.GenerateWithReference(ctx, sess.FinalPrompt, sess.Reference.FileURL)
	} else {
		img, err = m.generator.Generate(ctx, sess.FinalPrompt)
	}

	sess.State = StateIteratingImage
	if err != nil {
		m.logger.Error("image generation failed",
			zap.Int64("user_id", sess.UserID),
			zap.Bool("with_reference", sess.Reference != nil),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return []Outbound{{Text: generationFailedText}}
	}

	sess.GeneratedImages = []string{img.URL}
	m.logger.Info("image generated",
		zap.Int64("user_id", sess.UserID),
		zap.Bool("with_reference", sess.Reference != nil),
		zap.Duration("elapsed", time.Since(start)))

	m.record(ctx, sess, img.URL, time.Since(start))

	return []Outbound{
		{PhotoURL: img.URL, Caption: generatedCaption},
		{Text: iterateFollowupText},
	}
}

func (m *Machine) record(ctx context.Context, sess *Session, imageURL string, elapsed time.Duration) {
	if m.recorder == nil {
		return
	}
	err := m.recorder.Record(ctx, &history.Generation{
		UserID:        sess.UserID,
		Prompt:        sess.FinalPrompt,
		ImageURL:      imageURL,
		WithReference: sess.Reference != nil,
		Duration:      elapsed,
	})
	if err != nil {
		m.logger.Warn("failed to record generation",
			zap.Int64("user_id", sess.UserID),
			zap.Error(err))
	}
}

func largestPhoto(photos []Photo) Photo {
	best := photos[0]
	for _, p := range photos[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}
