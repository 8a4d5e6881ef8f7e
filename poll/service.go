package poll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/resoli/api.ask.resoli.dev/auth"
	"github.com/resoli/api.ask.resoli.dev/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Results maps option ids (hex) to their current vote counts. A vote or
// reset always yields the full mapping for the question, not just the
// options touched.
type Results map[string]int32

// Service holds the poll lifecycle, question ordering/activation and
// vote aggregation rules on top of a PollStorage.
type Service struct {
	store storage.PollStorage

	// Serializes the clear-then-set sequence on the public poll
	// singleton. Single node; cross-node callers are backstopped by
	// the partial unique index on is_public.
	publicMtx sync.Mutex
}

func NewService(store storage.PollStorage) *Service {
	return &Service{store: store}
}

// CreatePoll stores a new poll under its access code. The raw password
// is hashed at this boundary and never persisted.
func (s *Service) CreatePoll(ctx context.Context, accessCode, password string, availableFrom, availableUntil *time.Time) (*storage.Poll, error) {
	if strings.TrimSpace(accessCode) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrValidation
	}

	p := &storage.Poll{
		AccessCode:     accessCode,
		PasswordHash:   auth.HashPassword(password),
		CreatedAt:      time.Now().UTC(),
		AvailableFrom:  availableFrom,
		AvailableUntil: availableUntil,
	}

	if err := s.store.CreatePoll(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicateAccessCode) {
			return nil, ErrConflict
		}
		return nil, err
	}
	p.Questions = []*storage.Question{}
	return p, nil
}

func (s *Service) GetPollByCode(ctx context.Context, code string) (*storage.Poll, error) {
	p, err := s.store.GetPollByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetPollByID(ctx context.Context, id primitive.ObjectID) (*storage.Poll, error) {
	p, err := s.store.GetPollByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetPublicPoll(ctx context.Context) (*storage.Poll, error) {
	p, err := s.store.GetPublicPoll(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetAllPolls(ctx context.Context) ([]*storage.Poll, error) {
	return s.store.GetAllPolls(ctx)
}

// Authenticate verifies the owner password for the poll behind code.
func (s *Service) Authenticate(ctx context.Context, code, password string) (*storage.Poll, error) {
	p, err := s.GetPollByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(password, p.PasswordHash) {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// VerifyOwner reports whether password matches the poll's stored
// digest.
func (s *Service) VerifyOwner(p *storage.Poll, password string) bool {
	return auth.VerifyPassword(password, p.PasswordHash)
}

// UpdateAvailability replaces the availability window of a poll. Either
// bound may be nil for an open end.
func (s *Service) UpdateAvailability(ctx context.Context, p *storage.Poll, availableFrom, availableUntil *time.Time) error {
	p.AvailableFrom = availableFrom
	p.AvailableUntil = availableUntil
	err := s.store.UpdatePoll(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// IsAvailable reports whether the poll accepts respondents at now.
// Bounds are inclusive and independently optional.
func (s *Service) IsAvailable(p *storage.Poll, now time.Time) bool {
	if p.AvailableFrom != nil && now.Before(*p.AvailableFrom) {
		return false
	}
	if p.AvailableUntil != nil && now.After(*p.AvailableUntil) {
		return false
	}
	return true
}

// SetPublicPoll designates the poll behind code as the system-wide
// public poll, clearing the previous holder first. The two writes are
// sequential, not atomic; the mutex keeps concurrent designations from
// interleaving.
func (s *Service) SetPublicPoll(ctx context.Context, code string, timeoutMinutes *int32) error {
	s.publicMtx.Lock()
	defer s.publicMtx.Unlock()

	current, err := s.store.GetPublicPoll(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if current != nil {
		current.IsPublic = false
		current.TimeoutMinutes = nil
		if err = s.store.UpdatePoll(ctx, current); err != nil {
			return err
		}
	}

	p, err := s.store.GetPollByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	p.IsPublic = true
	p.TimeoutMinutes = timeoutMinutes
	return s.store.UpdatePoll(ctx, p)
}

// ClearPublicPoll removes the public designation, if any.
func (s *Service) ClearPublicPoll(ctx context.Context) error {
	s.publicMtx.Lock()
	defer s.publicMtx.Unlock()

	current, err := s.store.GetPublicPoll(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	current.IsPublic = false
	current.TimeoutMinutes = nil
	return s.store.UpdatePoll(ctx, current)
}

// DeletePoll removes the poll and cascades to its questions and their
// options.
func (s *Service) DeletePoll(ctx context.Context, id primitive.ObjectID) error {
	err := s.store.DeletePoll(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// AddQuestion appends a question to the end of the poll. At least two
// option texts are required; options get their list position as order
// index.
func (s *Service) AddQuestion(ctx context.Context, pollID primitive.ObjectID, title *string, content string, useMonospace, allowMultiple bool, optionTexts []string) (*storage.Question, error) {
	if len(optionTexts) < 2 {
		return nil, ErrValidation
	}

	existing, err := s.store.ListQuestionsByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	q := &storage.Question{
		PollID:        pollID,
		OrderIndex:    int32(len(existing)),
		Title:         title,
		Content:       content,
		UseMonospace:  useMonospace,
		AllowMultiple: allowMultiple,
	}
	for i, text := range optionTexts {
		q.Options = append(q.Options, &storage.Option{
			Text:       text,
			OrderIndex: int32(i),
		})
	}

	if err = s.store.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) GetQuestion(ctx context.Context, id primitive.ObjectID) (*storage.Question, error) {
	q, err := s.store.GetQuestionByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return q, err
}

// UpdateQuestion rewrites the content fields of a question. Order
// index, active flag, image and options are left untouched.
func (s *Service) UpdateQuestion(ctx context.Context, id primitive.ObjectID, title *string, content string, useMonospace, allowMultiple bool) error {
	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		return err
	}

	q.Title = title
	q.Content = content
	q.UseMonospace = useMonospace
	q.AllowMultiple = allowMultiple
	return s.store.UpdateQuestion(ctx, q)
}

// SetQuestionImage records (or clears, with nil) the stored image
// reference of a question.
func (s *Service) SetQuestionImage(ctx context.Context, id primitive.ObjectID, imagePath *string) error {
	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		return err
	}

	q.ImagePath = imagePath
	return s.store.UpdateQuestion(ctx, q)
}

func (s *Service) DeleteQuestion(ctx context.Context, id primitive.ObjectID) error {
	err := s.store.DeleteQuestion(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ReorderQuestions assigns every listed question its list position as
// order index. Ids that do not belong to the poll are dropped silently,
// so a stale client list cannot fail the whole reorder; questions the
// caller omits keep their old index.
func (s *Service) ReorderQuestions(ctx context.Context, pollID primitive.ObjectID, questionIDs []primitive.ObjectID) error {
	return s.store.ReorderQuestions(ctx, pollID, questionIDs)
}

// ActivateQuestion makes questionID the single live question of the
// poll, deactivating whichever question held the slot before. Under
// concurrent calls the last write wins.
func (s *Service) ActivateQuestion(ctx context.Context, pollID, questionID primitive.ObjectID) error {
	err := s.store.SetActiveQuestion(ctx, pollID, questionID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// DeactivateAll takes every question of the poll off air.
func (s *Service) DeactivateAll(ctx context.Context, pollID primitive.ObjectID) error {
	return s.store.DeactivateQuestions(ctx, pollID)
}

// Vote applies one respondent submission to a question and returns the
// resulting counts for all of its options.
//
// A single-choice question honors only the first selected id; the rest
// are dropped without error. Selected ids that do not name an option of
// the question are dropped as well. Nothing stops a respondent from
// voting repeatedly; dedup is the caller's concern.
func (s *Service) Vote(ctx context.Context, questionID primitive.ObjectID, optionIDs []primitive.ObjectID) (Results, error) {
	if len(optionIDs) == 0 {
		return nil, ErrValidation
	}

	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	selection := optionIDs
	if !q.AllowMultiple {
		selection = optionIDs[:1]
	}

	known := make(map[primitive.ObjectID]bool, len(q.Options))
	for _, o := range q.Options {
		known[o.ID] = true
	}
	honored := make([]primitive.ObjectID, 0, len(selection))
	for _, id := range selection {
		if known[id] {
			honored = append(honored, id)
		}
	}

	if len(honored) > 0 {
		if err = s.store.IncrementVotes(ctx, questionID, honored); err != nil {
			return nil, err
		}
	}

	return s.GetResults(ctx, questionID)
}

// ResetVotes zeroes every option of the question. Irreversible.
func (s *Service) ResetVotes(ctx context.Context, questionID primitive.ObjectID) error {
	if _, err := s.GetQuestion(ctx, questionID); err != nil {
		return err
	}
	return s.store.ResetVotes(ctx, questionID)
}

// GetResults returns the current count of every option of the question.
func (s *Service) GetResults(ctx context.Context, questionID primitive.ObjectID) (Results, error) {
	opts, err := s.store.ListOptionsByQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	results := Results{}
	for _, o := range opts {
		results[o.ID.Hex()] = o.VoteCount
	}
	return results, nil
}
