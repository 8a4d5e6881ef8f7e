package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrNotFound = errors.New("item not found in storage")
var ErrDuplicateAccessCode = errors.New("poll with that access code already exists")

// PollStorage is the narrow contract the core consumes for durable
// records. Reads that carry nested collections return questions sorted
// by order index and options sorted by order index. Every mutation is a
// single round trip scoped to the affected rows; the cascade deletes
// must not leave orphans visible.
type PollStorage interface {
	GetPollByCode(ctx context.Context, code string) (*Poll, error)
	GetPollByID(ctx context.Context, id primitive.ObjectID) (*Poll, error)
	GetPublicPoll(ctx context.Context) (*Poll, error)
	GetAllPolls(ctx context.Context) ([]*Poll, error)
	CreatePoll(ctx context.Context, poll *Poll) error
	UpdatePoll(ctx context.Context, poll *Poll) error
	DeletePoll(ctx context.Context, id primitive.ObjectID) error

	GetQuestionByID(ctx context.Context, id primitive.ObjectID) (*Question, error)
	CreateQuestion(ctx context.Context, question *Question) error
	UpdateQuestion(ctx context.Context, question *Question) error
	DeleteQuestion(ctx context.Context, id primitive.ObjectID) error
	ListQuestionsByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*Question, error)
	ListOptionsByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]*Option, error)

	// SetActiveQuestion deactivates every question of the poll and then
	// activates the target, enforcing the one-active-question rule.
	SetActiveQuestion(ctx context.Context, pollID, questionID primitive.ObjectID) error
	DeactivateQuestions(ctx context.Context, pollID primitive.ObjectID) error

	// ReorderQuestions assigns each listed question the order index of
	// its position in the list. Ids that do not belong to the poll are
	// skipped without error.
	ReorderQuestions(ctx context.Context, pollID primitive.ObjectID, questionIDs []primitive.ObjectID) error

	// IncrementVotes adds one vote to each listed option of the
	// question. Increments are safe under concurrent callers.
	IncrementVotes(ctx context.Context, questionID primitive.ObjectID, optionIDs []primitive.ObjectID) error
	ResetVotes(ctx context.Context, questionID primitive.ObjectID) error
}
