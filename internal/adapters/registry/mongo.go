package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/melih/gamehost/internal/core/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const gamesCounterID = "games"

// gameDocument is the stored shape of a Game.
type gameDocument struct {
	ID            int64     `bson:"_id"`
	Directory     string    `bson:"directory"`
	Port          int       `bson:"port"`
	ContainerName string    `bson:"container_name"`
	Image         string    `bson:"image"`
	Status        string    `bson:"status"`
	ReconciledAt  time.Time `bson:"reconciled_at,omitempty"`
}

type counterDocument struct {
	ID      string `bson:"_id"`
	Seq     int64  `bson:"seq"`
	MaxPort *int   `bson:"max_port,omitempty"`
}

// MongoStore keeps games in one collection and the id sequence plus port
// high-water mark in a counters collection.
type MongoStore struct {
	games    *mongo.Collection
	counters *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance.
// The collections come from the mongodb client wrapper.
func NewMongoStore(games, counters *mongo.Collection) *MongoStore {
	return &MongoStore{games: games, counters: counters}
}

// EnsureIndexes creates the port and container_name lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.games.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "port", Value: -1}}},
		{Keys: bson.D{{Key: "container_name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create game indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, game domain.Game) (domain.Game, error) {
	held, err := s.games.CountDocuments(ctx, bson.M{"port": game.Port})
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to check port %d: %w", game.Port, err)
	}
	if held > 0 {
		return domain.Game{}, domain.ErrPortTaken
	}

	var counter counterDocument
	err = s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": gamesCounterID},
		bson.M{"$inc": bson.M{"seq": 1}, "$max": bson.M{"max_port": game.Port}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to allocate game id: %w", err)
	}

	game.ID = counter.Seq
	if _, err := s.games.InsertOne(ctx, toDocument(game)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Game{}, fmt.Errorf("game %d already exists: %w", game.ID, err)
		}
		return domain.Game{}, fmt.Errorf("failed to create game %d: %w", game.ID, err)
	}
	return game, nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (domain.Game, error) {
	var doc gameDocument
	err := s.games.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Game{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to get game %d: %w", id, err)
	}
	return doc.toGame(), nil
}

func (s *MongoStore) List(ctx context.Context) ([]domain.Game, error) {
	cursor, err := s.games.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []gameDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode games: %w", err)
	}
	games := make([]domain.Game, 0, len(docs))
	for _, d := range docs {
		games = append(games, d.toGame())
	}
	return games, nil
}

func (s *MongoStore) Update(ctx context.Context, game domain.Game) error {
	held, err := s.games.CountDocuments(ctx, bson.M{"port": game.Port, "_id": bson.M{"$ne": game.ID}})
	if err != nil {
		return fmt.Errorf("failed to check port %d: %w", game.Port, err)
	}
	if held > 0 {
		return domain.ErrPortTaken
	}

	res, err := s.games.ReplaceOne(ctx, bson.M{"_id": game.ID}, toDocument(game))
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", game.ID, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	_, err = s.counters.UpdateOne(ctx,
		bson.M{"_id": gamesCounterID},
		bson.M{"$max": bson.M{"max_port": game.Port}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to record port %d: %w", game.Port, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.games.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete game %d: %w", id, err)
	}
	return nil
}

func (s *MongoStore) MaxPort(ctx context.Context) (int, bool, error) {
	var counter counterDocument
	err := s.counters.FindOne(ctx, bson.M{"_id": gamesCounterID}).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read port high-water mark: %w", err)
	}
	if counter.MaxPort == nil {
		return 0, false, nil
	}
	return *counter.MaxPort, true, nil
}

func toDocument(g domain.Game) gameDocument {
	return gameDocument{
		ID:            g.ID,
		Directory:     g.Directory,
		Port:          g.Port,
		ContainerName: g.ContainerName,
		Image:         g.Image,
		Status:        string(g.Status),
		ReconciledAt:  g.ReconciledAt,
	}
}

func (d gameDocument) toGame() domain.Game {
	return domain.Game{
		ID:            d.ID,
		Directory:     d.Directory,
		Port:          d.Port,
		ContainerName: d.ContainerName,
		Image:         d.Image,
		Status:        domain.Status(d.Status),
		ReconciledAt:  d.ReconciledAt,
	}
}
