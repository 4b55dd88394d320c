package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// databases and collections shared by the services
const (
	POSTS_DB               = "post"
	POSTS_COLLECTION       = "post"
	USERS_DB               = "user"
	USERS_COLLECTION       = "user"
	SOCIAL_GRAPH_DB        = "social-graph"
	FOLLOWS_COLLECTION     = "social-graph"
	LISTS_COLLECTION       = "lists"
	VISIBILITY_DB          = "visibility"
	BLOCKS_COLLECTION      = "blocks"
	MUTES_COLLECTION       = "mutes"
	MUTED_POSTS_COLLECTION = "muted-posts"
	MUTED_WORDS_COLLECTION = "muted-words"
	REACTIONS_DB           = "reactions"
	FAVOURITES_COLLECTION  = "favourites"
	BOOKMARKS_COLLECTION   = "bookmarks"
	VOTES_COLLECTION       = "votes"
)

func MongoDBClient(ctx context.Context, address string, port int) (*mongo.Client, error) {
	uri := fmt.Sprintf("mongodb://%s:%d/?directConnection=true", address, port)
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mongodb cannot be reached after connecting: %w", err)
	}
	return client, nil
}
