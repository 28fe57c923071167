// Package session resolves a browser's lila2 session cookie into a
// lichess user id, backed by MongoDB's security collection. Heavily
// adapted from the teacher's internal/auth.SessionStore — which tracked
// sessions in Redis for a JWT-based API — into a read-only lookup against
// the actual Mongo-backed session store the reference implementation
// queries (mongodb::Client .db("lichess").collection("security"),
// {_id: sessionId, up: true} projecting {user: 1}). See SPEC_FULL.md C13.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lichess-org/lila-ws/internal/model"
)

// Store looks up active sessions in the security collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        zerolog.Logger
}

// Connect dials MongoDB and selects the lichess.security collection.
func Connect(ctx context.Context, mongoURI string, log zerolog.Logger) (*Store, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database("lichess").Collection("security"),
		log:        log.With().Str("component", "session").Logger(),
	}, nil
}

// Close disconnects the Mongo client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type securityDoc struct {
	User string `bson:"user"`
}

// Lookup resolves sessionID to a user id, if the session is still "up".
// A miss (expired or unknown session) is not an error: it just means the
// connection stays anonymous.
func (s *Store) Lookup(ctx context.Context, sessionID string) (model.UserId, bool) {
	filter := bson.M{"_id": sessionID, "up": true}
	opts := options.FindOne().SetProjection(bson.M{"user": 1})

	var doc securityDoc
	err := s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		s.log.Info().Msg("session store lookup with expired or unknown sid")
		return "", false
	}
	if err != nil {
		s.log.Error().Err(err).Msg("session store query failed")
		return "", false
	}

	uid, err := model.ParseUserId(doc.User)
	if err != nil {
		s.log.Warn().Err(err).Msg("session store returned invalid user id")
		return "", false
	}
	return uid, true
}
