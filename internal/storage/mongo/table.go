// Package mongo stores each table as a MongoDB collection.
// Documents wrap the record with a sequence number that preserves insertion order.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
)

const countersCollection = "counters"

type document[T any] struct {
	ID     string `bson:"_id"`
	Seq    int64  `bson:"seq"`
	Record T      `bson:"record"`
}

type Table[T storage.Record] struct {
	mu       sync.Mutex
	name     string
	coll     *mongo.Collection
	counters *mongo.Collection
}

func newTable[T storage.Record](db *mongo.Database, name string) *Table[T] {
	return &Table[T]{
		name:     name,
		coll:     db.Collection(name),
		counters: db.Collection(countersCollection),
	}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	defer logger.DeferLogDuration("mongo.Get "+t.name, time.Now())()
	var doc document[T]
	err := t.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero T
		return zero, storage.ErrNotFound
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("mongo.Get %s: %w", t.name, err)
	}
	return doc.Record, nil
}

func (t *Table[T]) List(ctx context.Context, match func(T) bool) ([]T, error) {
	defer logger.DeferLogDuration("mongo.List "+t.name, time.Now())()
	cur, err := t.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo.List %s: %w", t.name, err)
	}
	defer cur.Close(ctx)

	out := make([]T, 0, 64)
	for cur.Next(ctx) {
		var doc document[T]
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo.List %s decode: %w", t.name, err)
		}
		if match == nil || match(doc.Record) {
			out = append(out, doc.Record)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo.List %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table[T]) Append(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("mongo.Append "+t.name, time.Now())()
	t.mu.Lock()
	defer t.mu.Unlock()
	seq, err := t.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = t.coll.InsertOne(ctx, document[T]{ID: rec.RecordID(), Seq: seq, Record: rec})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("mongo.Append %s: %w", t.name, err)
	}
	return nil
}

func (t *Table[T]) Put(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("mongo.Put "+t.name, time.Now())()
	t.mu.Lock()
	defer t.mu.Unlock()
	seq, err := t.nextSeq(ctx)
	if err != nil {
		return err
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "record", Value: rec}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "seq", Value: seq}}},
	}
	_, err = t.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: rec.RecordID()}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo.Put %s: %w", t.name, err)
	}
	return nil
}

// nextSeq increments the per-table counter. Gaps are fine; only the order matters.
func (t *Table[T]) nextSeq(ctx context.Context) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := t.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: t.name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("mongo.nextSeq %s: %w", t.name, err)
	}
	return out.Seq, nil
}

// Open builds a Store on database dbName of an already connected client.
// Close disconnects the client.
func Open(ctx context.Context, client *mongo.Client, dbName string) (*storage.Store, error) {
	db := client.Database(dbName)
	for _, name := range []string{storage.TableMessages, storage.TableChats, storage.TableGroups} {
		_, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "seq", Value: 1}}})
		if err != nil {
			return nil, fmt.Errorf("mongo.Open index %s: %w", name, err)
		}
	}
	s := &storage.Store{
		Users:         newTable[model.User](db, storage.TableUsers),
		Chats:         newTable[model.Chat](db, storage.TableChats),
		Messages:      newTable[model.Message](db, storage.TableMessages),
		Groups:        newTable[model.Group](db, storage.TableGroups),
		Announcements: newTable[model.Announcement](db, storage.TableAnnouncements),
	}
	s.OnClose(client.Disconnect)
	return s, nil
}

var _ storage.Table[model.Chat] = (*Table[model.Chat])(nil)
