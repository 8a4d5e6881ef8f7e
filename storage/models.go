package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Poll is a named live poll owned by an asker. The access code is chosen
// by the asker, is globally unique and never changes after creation.
type Poll struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AccessCode     string             `json:"access_code" bson:"access_code"`
	PasswordHash   string             `json:"-" bson:"password_hash"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	AvailableFrom  *time.Time         `json:"available_from" bson:"available_from,omitempty"`
	AvailableUntil *time.Time         `json:"available_until" bson:"available_until,omitempty"`
	TimeoutMinutes *int32             `json:"timeout_minutes" bson:"timeout_minutes,omitempty"`
	IsPublic       bool               `json:"is_public" bson:"is_public"`

	Questions []*Question `json:"questions" bson:"-"`
}

// Question belongs to exactly one poll. OrderIndex is a dense zero-based
// position within the poll. At most one question per poll is active.
type Question struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PollID        primitive.ObjectID `json:"poll_id" bson:"poll_id"`
	OrderIndex    int32              `json:"order_index" bson:"order_index"`
	Title         *string            `json:"title" bson:"title,omitempty"`
	Content       string             `json:"content" bson:"content"`
	UseMonospace  bool               `json:"use_monospace" bson:"use_monospace"`
	AllowMultiple bool               `json:"allow_multiple" bson:"allow_multiple"`
	IsActive      bool               `json:"is_active" bson:"is_active"`
	ImagePath     *string            `json:"image_path" bson:"image_path,omitempty"`

	Options []*Option `json:"options" bson:"-"`
}

// Option belongs to exactly one question. VoteCount only grows through
// vote increments and only returns to zero through an explicit reset.
type Option struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	QuestionID primitive.ObjectID `json:"question_id" bson:"question_id"`
	Text       string             `json:"text" bson:"text"`
	VoteCount  int32              `json:"vote_count" bson:"vote_count"`
	OrderIndex int32              `json:"order_index" bson:"order_index"`
}
