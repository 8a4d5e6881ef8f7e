package mongo

import (
	"context"

	"github.com/resoli/api.ask.resoli.dev/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	log "github.com/sirupsen/logrus"
)

var Ctx = context.TODO()

var ErrNoDocuments = mongo.ErrNoDocuments

// Connect opens the database and ensures the indexes the core relies
// on: the unique access code, the public-poll singleton backstop and
// the ownership lookups.
func Connect(uri, db string) (*mongo.Database, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(Ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(Ctx, nil); err != nil {
		return nil, err
	}

	database := client.Database(db)

	_, err = database.Collection(storage.CollectionPolls).Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"access_code": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"is_public": 1},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_public": true}),
		},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
	}

	_, err = database.Collection(storage.CollectionQuestions).Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{Keys: bson.M{"poll_id": 1}},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
	}

	_, err = database.Collection(storage.CollectionOptions).Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{Keys: bson.M{"question_id": 1}},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
	}

	return database, nil
}
