package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStorage implements PollStorage in process memory. All methods
// run under one mutex, which gives vote increments the serialized
// read-modify-write the contract requires. Used by tests and local
// single-node runs.
type MemoryStorage struct {
	mtx       sync.Mutex
	polls     map[primitive.ObjectID]*Poll
	questions map[primitive.ObjectID]*Question
	options   map[primitive.ObjectID]*Option
	seq       map[primitive.ObjectID]int
	nextSeq   int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		polls:     map[primitive.ObjectID]*Poll{},
		questions: map[primitive.ObjectID]*Question{},
		options:   map[primitive.ObjectID]*Option{},
		seq:       map[primitive.ObjectID]int{},
	}
}

func copyPoll(p *Poll) *Poll {
	c := *p
	c.Questions = nil
	return &c
}

func copyQuestion(q *Question) *Question {
	c := *q
	c.Options = nil
	return &c
}

func copyOption(o *Option) *Option {
	c := *o
	return &c
}

func (s *MemoryStorage) track(id primitive.ObjectID) {
	s.nextSeq++
	s.seq[id] = s.nextSeq
}

func (s *MemoryStorage) GetPollByCode(ctx context.Context, code string) (*Poll, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, p := range s.polls {
		if p.AccessCode == code {
			return s.assemblePoll(p, true), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetPollByID(ctx context.Context, id primitive.ObjectID) (*Poll, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.assemblePoll(p, true), nil
}

func (s *MemoryStorage) GetPublicPoll(ctx context.Context) (*Poll, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, p := range s.polls {
		if p.IsPublic {
			return s.assemblePoll(p, true), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetAllPolls(ctx context.Context) ([]*Poll, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	polls := make([]*Poll, 0, len(s.polls))
	for _, p := range s.polls {
		polls = append(polls, s.assemblePoll(p, false))
	}
	sort.Slice(polls, func(i, j int) bool {
		return polls[i].CreatedAt.After(polls[j].CreatedAt)
	})
	return polls, nil
}

func (s *MemoryStorage) assemblePoll(p *Poll, withOptions bool) *Poll {
	poll := copyPoll(p)
	poll.Questions = s.questionsOf(p.ID, withOptions)
	return poll
}

func (s *MemoryStorage) questionsOf(pollID primitive.ObjectID, withOptions bool) []*Question {
	questions := []*Question{}
	for _, q := range s.questions {
		if q.PollID == pollID {
			c := copyQuestion(q)
			if withOptions {
				c.Options = s.optionsOf(q.ID)
			}
			questions = append(questions, c)
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].OrderIndex != questions[j].OrderIndex {
			return questions[i].OrderIndex < questions[j].OrderIndex
		}
		return s.seq[questions[i].ID] < s.seq[questions[j].ID]
	})
	return questions
}

func (s *MemoryStorage) optionsOf(questionID primitive.ObjectID) []*Option {
	opts := []*Option{}
	for _, o := range s.options {
		if o.QuestionID == questionID {
			opts = append(opts, copyOption(o))
		}
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].OrderIndex != opts[j].OrderIndex {
			return opts[i].OrderIndex < opts[j].OrderIndex
		}
		return s.seq[opts[i].ID] < s.seq[opts[j].ID]
	})
	return opts
}

func (s *MemoryStorage) CreatePoll(ctx context.Context, poll *Poll) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, p := range s.polls {
		if p.AccessCode == poll.AccessCode {
			return ErrDuplicateAccessCode
		}
	}
	if poll.ID.IsZero() {
		poll.ID = primitive.NewObjectID()
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now().UTC()
	}
	s.polls[poll.ID] = copyPoll(poll)
	s.track(poll.ID)
	return nil
}

func (s *MemoryStorage) UpdatePoll(ctx context.Context, poll *Poll) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.polls[poll.ID]; !ok {
		return ErrNotFound
	}
	s.polls[poll.ID] = copyPoll(poll)
	return nil
}

func (s *MemoryStorage) DeletePoll(ctx context.Context, id primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.polls[id]; !ok {
		return ErrNotFound
	}
	delete(s.polls, id)
	for qid, q := range s.questions {
		if q.PollID != id {
			continue
		}
		delete(s.questions, qid)
		for oid, o := range s.options {
			if o.QuestionID == qid {
				delete(s.options, oid)
			}
		}
	}
	return nil
}

func (s *MemoryStorage) GetQuestionByID(ctx context.Context, id primitive.ObjectID) (*Question, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyQuestion(q)
	c.Options = s.optionsOf(id)
	return c, nil
}

func (s *MemoryStorage) CreateQuestion(ctx context.Context, question *Question) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if question.ID.IsZero() {
		question.ID = primitive.NewObjectID()
	}
	s.questions[question.ID] = copyQuestion(question)
	s.track(question.ID)
	for _, o := range question.Options {
		if o.ID.IsZero() {
			o.ID = primitive.NewObjectID()
		}
		o.QuestionID = question.ID
		s.options[o.ID] = copyOption(o)
		s.track(o.ID)
	}
	return nil
}

func (s *MemoryStorage) UpdateQuestion(ctx context.Context, question *Question) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.questions[question.ID]; !ok {
		return ErrNotFound
	}
	s.questions[question.ID] = copyQuestion(question)
	return nil
}

func (s *MemoryStorage) DeleteQuestion(ctx context.Context, id primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.questions[id]; !ok {
		return ErrNotFound
	}
	delete(s.questions, id)
	for oid, o := range s.options {
		if o.QuestionID == id {
			delete(s.options, oid)
		}
	}
	return nil
}

func (s *MemoryStorage) ListQuestionsByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*Question, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.questionsOf(pollID, false), nil
}

func (s *MemoryStorage) ListOptionsByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]*Option, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.optionsOf(questionID), nil
}

func (s *MemoryStorage) SetActiveQuestion(ctx context.Context, pollID, questionID primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	target, ok := s.questions[questionID]
	if !ok || target.PollID != pollID {
		return ErrNotFound
	}
	for _, q := range s.questions {
		if q.PollID == pollID {
			q.IsActive = q.ID == questionID
		}
	}
	return nil
}

func (s *MemoryStorage) DeactivateQuestions(ctx context.Context, pollID primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, q := range s.questions {
		if q.PollID == pollID {
			q.IsActive = false
		}
	}
	return nil
}

func (s *MemoryStorage) ReorderQuestions(ctx context.Context, pollID primitive.ObjectID, questionIDs []primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for i, id := range questionIDs {
		if q, ok := s.questions[id]; ok && q.PollID == pollID {
			q.OrderIndex = int32(i)
		}
	}
	return nil
}

func (s *MemoryStorage) IncrementVotes(ctx context.Context, questionID primitive.ObjectID, optionIDs []primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, id := range optionIDs {
		if o, ok := s.options[id]; ok && o.QuestionID == questionID {
			o.VoteCount++
		}
	}
	return nil
}

func (s *MemoryStorage) ResetVotes(ctx context.Context, questionID primitive.ObjectID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, o := range s.options {
		if o.QuestionID == questionID {
			o.VoteCount = 0
		}
	}
	return nil
}
