// Package structcache persists structured copies of upstream list payloads
// (clients, bills, items, ...) in MongoDB, one collection per session. It is
// the gateway analogue of the frontend's structured local database storage:
// collection names carry the application-identifying substring so the logout
// teardown can find and drop them by name.
package structcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AppSubstring identifies this application's collections.
const AppSubstring = "ledgerline"

// Store caches JSON documents per session in a Mongo database. A nil Store
// (or one built with a nil database) is a no-op everywhere, so callers never
// have to branch on whether Mongo is configured.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store { return &Store{db: db} }

func collectionName(sid string) string {
	return fmt.Sprintf("%s_cache_%s", AppSubstring, sid)
}

// Put upserts a payload under (sid, key).
func (s *Store) Put(ctx context.Context, sid, key string, payload interface{}) error {
	if s == nil || s.db == nil {
		return nil
	}
	col := s.db.Collection(collectionName(sid))
	filter := bson.M{"key": key}
	update := bson.M{"$set": bson.M{
		"key":       key,
		"payload":   payload,
		"updatedAt": time.Now().UTC(),
	}}
	_, err := col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("structcache put: %w", err)
	}
	return nil
}

// Get fetches the payload stored under (sid, key) into out. Returns
// (false, nil) when absent or when Mongo is unconfigured.
func (s *Store) Get(ctx context.Context, sid, key string, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	col := s.db.Collection(collectionName(sid))
	var doc struct {
		Payload bson.Raw `bson:"payload"`
	}
	if err := col.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	if err := bson.Unmarshal(doc.Payload, out); err != nil {
		return false, fmt.Errorf("structcache decode: %w", err)
	}
	return true, nil
}

// DropSessionCollections enumerates the database's collections and drops
// every one whose name contains the application-identifying substring and
// the session ID. Best effort: the first error is returned but enumeration
// continues.
func (s *Store) DropSessionCollections(ctx context.Context, sid string) error {
	if s == nil || s.db == nil {
		return nil
	}
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("structcache list collections: %w", err)
	}
	var firstErr error
	for _, name := range names {
		if !strings.Contains(name, AppSubstring) || !strings.Contains(name, sid) {
			continue
		}
		if err := s.db.Collection(name).Drop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return firstErr
}
