package ingest

import (
	"context"
	"time"

	"PPGateway/logger"
	"PPGateway/service/mgo"
	"PPGateway/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoSource tails the messages collection with a change stream and
// delivers every inserted document.
type MongoSource struct {
	mgr        *mgo.Manager
	collection string
	retry      time.Duration
}

func NewMongoSource(mgr *mgo.Manager, collection string) *MongoSource {
	return &MongoSource{mgr: mgr, collection: collection, retry: time.Second}
}

func (s *MongoSource) Name() string { return "mongo" }

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

func insertPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
}

func (s *MongoSource) Run(ctx context.Context, d Deliverer) error {
	s.mgr.StartAsync(ctx)

	var resume bson.Raw
	for {
		db, err := s.mgr.WaitReady(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			resume, err = s.watch(ctx, db.Collection(s.collection), resume, d)
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("[ingest] change stream interrupted", zap.String("collection", s.collection), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retry):
		}
	}
}

// watch runs one change stream until it fails and returns the last resume
// token so the next stream picks up where this one stopped.
func (s *MongoSource) watch(ctx context.Context, coll *mongo.Collection, resume bson.Raw, d Deliverer) (bson.Raw, error) {
	opts := options.ChangeStream()
	if resume != nil {
		opts.SetResumeAfter(resume)
	}
	cs, err := coll.Watch(ctx, insertPipeline(), opts)
	if err != nil {
		return resume, errs.WrapMsg(err, "watch", "collection", s.collection)
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			logger.Warn("[ingest] change event decode", zap.Error(err))
			resume = cs.ResumeToken()
			continue
		}
		msg, err := DecodeDocument(ev.FullDocument)
		if err != nil {
			logger.Warn("[ingest] message document decode", zap.Error(err))
		} else {
			deliver(d, "mongo", msg)
		}
		resume = cs.ResumeToken()
	}
	if err := cs.Err(); err != nil {
		return resume, errs.WrapMsg(err, "change stream", "collection", s.collection)
	}
	return resume, errs.ErrConnClosed.WrapMsg("change stream closed", "collection", s.collection)
}
