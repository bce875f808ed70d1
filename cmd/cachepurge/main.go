// cachepurge is an operational helper that runs the logout teardown's
// storage sweeps standalone: it purges the MinIO cache buckets and drops
// every Mongo collection carrying the application-identifying substring.
// Useful after deployments that change cache formats.
package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/database"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/storage"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/structcache"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	purged := false

	if buckets, err := storage.NewCacheBuckets(storage.LoadMinIOConfig()); err != nil {
		log.Printf("skipping MinIO purge: %v", err)
	} else {
		if err := buckets.PurgeCacheBuckets(ctx); err != nil {
			log.Printf("warning: bucket purge incomplete: %v", err)
		} else {
			log.Printf("cache buckets purged")
		}
		purged = true
	}

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Printf("skipping Mongo purge: MONGODB_URI not set")
	} else {
		client, err := database.ConnectMongo(ctx, mongoURI, 10*time.Second)
		if err != nil {
			log.Printf("skipping Mongo purge: %v", err)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(os.Getenv("MONGODB_DATABASE"))
			names, err := db.ListCollectionNames(ctx, bson.M{})
			if err != nil {
				log.Fatalf("list collections: %v", err)
			}
			dropped := 0
			for _, name := range names {
				if !strings.Contains(name, structcache.AppSubstring) {
					continue
				}
				if err := db.Collection(name).Drop(ctx); err != nil {
					log.Printf("warning: drop %s: %v", name, err)
					continue
				}
				dropped++
			}
			log.Printf("dropped %d cache collections", dropped)
			purged = true
		}
	}

	if !purged {
		log.Fatal("nothing to purge: configure MINIO_ENDPOINT and/or MONGODB_URI")
	}
}
