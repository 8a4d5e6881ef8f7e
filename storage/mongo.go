package storage

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionPolls     = "polls"
	CollectionQuestions = "questions"
	CollectionOptions   = "options"
)

// MongoStorage implements PollStorage on top of a mongo database.
// Vote increments use $inc so concurrent votes on the same option are
// serialized by the storage engine and never lost.
type MongoStorage struct {
	db *mongo.Database
}

func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{db: db}
}

func (s *MongoStorage) polls() *mongo.Collection {
	return s.db.Collection(CollectionPolls)
}

func (s *MongoStorage) questions() *mongo.Collection {
	return s.db.Collection(CollectionQuestions)
}

func (s *MongoStorage) options() *mongo.Collection {
	return s.db.Collection(CollectionOptions)
}

func (s *MongoStorage) GetPollByCode(ctx context.Context, code string) (*Poll, error) {
	return s.getPoll(ctx, bson.M{"access_code": code})
}

func (s *MongoStorage) GetPollByID(ctx context.Context, id primitive.ObjectID) (*Poll, error) {
	return s.getPoll(ctx, bson.M{"_id": id})
}

func (s *MongoStorage) GetPublicPoll(ctx context.Context) (*Poll, error) {
	return s.getPoll(ctx, bson.M{"is_public": true})
}

func (s *MongoStorage) getPoll(ctx context.Context, filter bson.M) (*Poll, error) {
	poll := &Poll{}
	err := s.polls().FindOne(ctx, filter).Decode(poll)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	if err = s.attachQuestions(ctx, poll, true); err != nil {
		return nil, err
	}
	return poll, nil
}

// GetAllPolls returns every poll, newest first, with ordered questions
// attached but without options.
func (s *MongoStorage) GetAllPolls(ctx context.Context) ([]*Poll, error) {
	cur, err := s.polls().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	polls := []*Poll{}
	if err = cur.All(ctx, &polls); err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	for _, poll := range polls {
		if err = s.attachQuestions(ctx, poll, false); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (s *MongoStorage) attachQuestions(ctx context.Context, poll *Poll, withOptions bool) error {
	questions, err := s.ListQuestionsByPoll(ctx, poll.ID)
	if err != nil {
		return err
	}
	poll.Questions = questions

	if !withOptions || len(questions) == 0 {
		return nil
	}

	ids := make([]primitive.ObjectID, len(questions))
	byID := make(map[primitive.ObjectID]*Question, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
		byID[q.ID] = q
		q.Options = []*Option{}
	}

	cur, err := s.options().Find(ctx,
		bson.M{"question_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "order_index", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}

	opts := []*Option{}
	if err = cur.All(ctx, &opts); err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}

	for _, o := range opts {
		if q, ok := byID[o.QuestionID]; ok {
			q.Options = append(q.Options, o)
		}
	}
	return nil
}

func (s *MongoStorage) CreatePoll(ctx context.Context, poll *Poll) error {
	res, err := s.polls().InsertOne(ctx, poll)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateAccessCode
		}
		log.Errorf("mongo, err=%v", err)
		return err
	}
	poll.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoStorage) UpdatePoll(ctx context.Context, poll *Poll) error {
	res, err := s.polls().ReplaceOne(ctx, bson.M{"_id": poll.ID}, poll)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateAccessCode
		}
		log.Errorf("mongo, err=%v", err)
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePoll removes the poll together with its questions and their
// options. The poll row goes first so the poll stops resolving before
// its children disappear.
func (s *MongoStorage) DeletePoll(ctx context.Context, id primitive.ObjectID) error {
	questions, err := s.ListQuestionsByPoll(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.polls().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	if len(questions) > 0 {
		ids := make([]primitive.ObjectID, len(questions))
		for i, q := range questions {
			ids[i] = q.ID
		}
		if _, err = s.options().DeleteMany(ctx, bson.M{"question_id": bson.M{"$in": ids}}); err != nil {
			log.Errorf("mongo, err=%v", err)
			return err
		}
	}
	if _, err = s.questions().DeleteMany(ctx, bson.M{"poll_id": id}); err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	return nil
}

func (s *MongoStorage) GetQuestionByID(ctx context.Context, id primitive.ObjectID) (*Question, error) {
	question := &Question{}
	err := s.questions().FindOne(ctx, bson.M{"_id": id}).Decode(question)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	question.Options, err = s.ListOptionsByQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	return question, nil
}

func (s *MongoStorage) CreateQuestion(ctx context.Context, question *Question) error {
	res, err := s.questions().InsertOne(ctx, question)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	question.ID = res.InsertedID.(primitive.ObjectID)

	if len(question.Options) == 0 {
		return nil
	}

	docs := make([]interface{}, len(question.Options))
	for i, o := range question.Options {
		o.QuestionID = question.ID
		docs[i] = o
	}
	ires, err := s.options().InsertMany(ctx, docs)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	for i, id := range ires.InsertedIDs {
		question.Options[i].ID = id.(primitive.ObjectID)
	}
	return nil
}

func (s *MongoStorage) UpdateQuestion(ctx context.Context, question *Question) error {
	res, err := s.questions().ReplaceOne(ctx, bson.M{"_id": question.ID}, question)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) DeleteQuestion(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.questions().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err = s.options().DeleteMany(ctx, bson.M{"question_id": id}); err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	return nil
}

func (s *MongoStorage) ListQuestionsByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*Question, error) {
	cur, err := s.questions().Find(ctx,
		bson.M{"poll_id": pollID},
		options.Find().SetSort(bson.D{{Key: "order_index", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	questions := []*Question{}
	if err = cur.All(ctx, &questions); err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}
	return questions, nil
}

func (s *MongoStorage) ListOptionsByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]*Option, error) {
	cur, err := s.options().Find(ctx,
		bson.M{"question_id": questionID},
		options.Find().SetSort(bson.D{{Key: "order_index", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}

	opts := []*Option{}
	if err = cur.All(ctx, &opts); err != nil {
		log.Errorf("mongo, err=%v", err)
		return nil, err
	}
	return opts, nil
}

func (s *MongoStorage) SetActiveQuestion(ctx context.Context, pollID, questionID primitive.ObjectID) error {
	if _, err := s.questions().UpdateMany(ctx,
		bson.M{"poll_id": pollID},
		bson.M{"$set": bson.M{"is_active": false}},
	); err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}

	res, err := s.questions().UpdateOne(ctx,
		bson.M{"_id": questionID, "poll_id": pollID},
		bson.M{"$set": bson.M{"is_active": true}},
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) DeactivateQuestions(ctx context.Context, pollID primitive.ObjectID) error {
	_, err := s.questions().UpdateMany(ctx,
		bson.M{"poll_id": pollID},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
	}
	return err
}

func (s *MongoStorage) ReorderQuestions(ctx context.Context, pollID primitive.ObjectID, questionIDs []primitive.ObjectID) error {
	for i, id := range questionIDs {
		// Filtering on poll_id drops ids from other polls.
		_, err := s.questions().UpdateOne(ctx,
			bson.M{"_id": id, "poll_id": pollID},
			bson.M{"$set": bson.M{"order_index": int32(i)}},
		)
		if err != nil {
			log.Errorf("mongo, err=%v", err)
			return err
		}
	}
	return nil
}

func (s *MongoStorage) IncrementVotes(ctx context.Context, questionID primitive.ObjectID, optionIDs []primitive.ObjectID) error {
	for _, id := range optionIDs {
		_, err := s.options().UpdateOne(ctx,
			bson.M{"_id": id, "question_id": questionID},
			bson.M{"$inc": bson.M{"vote_count": 1}},
		)
		if err != nil {
			log.Errorf("mongo, err=%v", err)
			return err
		}
	}
	return nil
}

func (s *MongoStorage) ResetVotes(ctx context.Context, questionID primitive.ObjectID) error {
	_, err := s.options().UpdateMany(ctx,
		bson.M{"question_id": questionID},
		bson.M{"$set": bson.M{"vote_count": 0}},
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
	}
	return err
}
