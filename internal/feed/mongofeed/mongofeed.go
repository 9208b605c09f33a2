package mongofeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/feedrelay/feedrelay/internal/cursor"
	"github.com/feedrelay/feedrelay/internal/event"
	"github.com/feedrelay/feedrelay/internal/feed"
)

const connectTimeout = 10 * time.Second

// Feed watches one MongoDB collection's change stream.
// It implements feed.Feed.
type Feed struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials the MongoDB deployment at uri and returns a Feed for
// database.collection. The caller owns the Feed and must Close it.
func Connect(ctx context.Context, uri, database, collection string) (*Feed, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongofeed: connect: %w", feed.Fatal(err))
	}

	if err := client.Ping(dialCtx, nil); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck
		return nil, fmt.Errorf("mongofeed: ping: %w", classify(err))
	}

	return &Feed{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Open implements feed.Feed. A nil resume token starts the stream at
// "now"; otherwise the stream resumes just after the token.
func (f *Feed) Open(ctx context.Context, resume cursor.Token) (feed.Stream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resume != nil {
		opts.SetResumeAfter(bson.Raw(resume))
	}

	cs, err := f.coll.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongofeed: watch %s: %w", f.coll.Name(), classify(err))
	}

	slog.Info("mongofeed: change stream open",
		"collection", f.coll.Name(),
		"resuming", resume != nil,
	)
	return &stream{cs: cs, collection: f.coll.Name()}, nil
}

// Close disconnects the underlying client.
func (f *Feed) Close(ctx context.Context) error {
	return f.client.Disconnect(ctx)
}

// stream adapts *mongo.ChangeStream to feed.Stream.
type stream struct {
	cs         *mongo.ChangeStream
	collection string
}

// Next blocks until the next change arrives, then decodes it into a
// RawRecord carrying the post-change resume token.
func (s *stream) Next(ctx context.Context) (event.RawRecord, error) {
	for {
		if !s.cs.Next(ctx) {
			err := s.cs.Err()
			if err == nil || ctx.Err() != nil {
				return event.RawRecord{}, feed.Transient(ctx.Err())
			}
			return event.RawRecord{}, classify(err)
		}

		rec, err := decodeChange(s.cs.Current)
		if err != nil {
			// Resuming would just re-deliver the same undecodable
			// document, so skip it; the next good record's token commits
			// past it.
			slog.Warn("mongofeed: skipping undecodable change document",
				"collection", s.collection,
				"err", err,
			)
			continue
		}

		rec.Collection = s.collection
		rec.Token = append([]byte(nil), s.cs.ResumeToken()...)
		return rec, nil
	}
}

func (s *stream) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}
