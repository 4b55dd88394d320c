package services

import (
	"regexp"
	"strings"

	"socialfeed/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// postFilter translates the candidate restrictions of a query into a mongodb
// filter. The seek cursor is handled separately by seekFilter.
func postFilter(query model.PostQuery) bson.D {
	filter := bson.D{}
	if query.Text != "" {
		filter = append(filter, bson.E{Key: "$text", Value: bson.D{{Key: "$search", Value: query.Text}}})
	}

	author := bson.D{}
	if query.RestrictAuthors {
		author = append(author, bson.E{Key: "$in", Value: query.Authors})
	}
	if len(query.ExcludeAuthors) > 0 {
		author = append(author, bson.E{Key: "$nin", Value: query.ExcludeAuthors})
	}
	if len(author) > 0 {
		filter = append(filter, bson.E{Key: "author", Value: author})
	}

	if query.Hashtag != "" {
		filter = append(filter, bson.E{Key: "hashtags", Value: query.Hashtag})
	}
	if query.MentionOf != 0 {
		filter = append(filter, bson.E{Key: "mentions", Value: query.MentionOf})
	}
	if query.QuoteOf != 0 {
		filter = append(filter, bson.E{Key: "attachments.post_id", Value: query.QuoteOf})
	}

	timestamp := bson.D{}
	if query.Since != 0 {
		timestamp = append(timestamp, bson.E{Key: "$gte", Value: query.Since})
	}
	if query.Until != 0 {
		timestamp = append(timestamp, bson.E{Key: "$lte", Value: query.Until})
	}
	if len(timestamp) > 0 {
		filter = append(filter, bson.E{Key: "timestamp", Value: timestamp})
	}

	if query.ReplyTo != 0 {
		filter = append(filter, bson.E{Key: "reply_to", Value: query.ReplyTo})
	} else {
		switch query.Replies {
		case model.REPLIES_EXCLUDE:
			filter = append(filter, bson.E{Key: "reply_to", Value: bson.D{{Key: "$exists", Value: false}}})
		case model.REPLIES_ONLY:
			filter = append(filter, bson.E{Key: "reply_to", Value: bson.D{{Key: "$exists", Value: true}}})
		}
	}
	if query.ExcludeReposts {
		filter = append(filter, bson.E{Key: "repeat_post", Value: bson.D{{Key: "$exists", Value: false}}})
	}
	if query.HasMedia {
		filter = append(filter, bson.E{Key: "attachments.media_file", Value: bson.D{{Key: "$exists", Value: true}}})
	}
	if len(query.Languages) > 0 {
		filter = append(filter, bson.E{Key: "languages", Value: languageMatch(query.Languages, query.AllLanguages)})
	}
	if query.MediaDescription != "" {
		filter = append(filter, bson.E{Key: "attachments.media_file.description", Value: bson.D{
			{Key: "$regex", Value: looseMatch(query.MediaDescription)},
			{Key: "$options", Value: "i"},
		}})
	}
	return filter
}

var whitespace = regexp.MustCompile(`\s+`)

// languageMatch selects posts written in a single language, in every one of
// langs when all is set, or otherwise only in languages among langs
func languageMatch(langs []string, all bool) interface{} {
	switch {
	case len(langs) == 1:
		return langs[0]
	case all:
		return bson.D{{Key: "$all", Value: langs}}
	default:
		return bson.D{
			{Key: "$exists", Value: true},
			{Key: "$not", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$nin", Value: langs}}}}},
		}
	}
}

// looseMatch builds a literal pattern where any run of whitespace matches any
// other run of whitespace
func looseMatch(s string) string {
	words := whitespace.Split(strings.TrimSpace(s), -1)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// seekFilter keeps the documents strictly after cursor in the given order
func seekFilter(cursor *model.Cursor, mode model.SortMode, ascending bool) bson.D {
	if cursor == nil {
		return nil
	}
	op := "$lt"
	if ascending {
		op = "$gt"
	}
	var field string
	var value interface{}
	keyOp, idOp := "$lt", "$lt"
	switch mode {
	case model.SORT_BY_POPULARITY:
		field, value = "score", cursor.Score
	case model.SORT_BY_RELEVANCE:
		field, value = "relevance", cursor.Score
		idOp = op
	case model.SORT_BY_DISTANCE:
		field, value = "distance", cursor.Distance
		keyOp = "$gt"
	default:
		field, value = "timestamp", cursor.Timestamp
		keyOp, idOp = op, op
	}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: field, Value: bson.D{{Key: keyOp, Value: value}}}},
		bson.D{
			{Key: field, Value: value},
			{Key: "post_id", Value: bson.D{{Key: idOp, Value: cursor.ID}}},
		},
	}}}
}

func postSort(mode model.SortMode, ascending bool) bson.D {
	dir := -1
	if ascending {
		dir = 1
	}
	switch mode {
	case model.SORT_BY_POPULARITY:
		return bson.D{{Key: "score", Value: -1}, {Key: "timestamp", Value: -1}, {Key: "post_id", Value: -1}}
	case model.SORT_BY_RELEVANCE:
		return bson.D{{Key: "relevance", Value: -1}, {Key: "timestamp", Value: dir}, {Key: "post_id", Value: dir}}
	case model.SORT_BY_DISTANCE:
		return bson.D{{Key: "distance", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "post_id", Value: -1}}
	default:
		return bson.D{{Key: "timestamp", Value: dir}, {Key: "post_id", Value: dir}}
	}
}

// postPipeline returns the aggregation that selects, orders and caps the
// candidates of query
func postPipeline(query model.PostQuery) mongo.Pipeline {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: postFilter(query)}}}
	if query.Sort == model.SORT_BY_RELEVANCE {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "relevance", Value: bson.D{{Key: "$meta", Value: "textScore"}}},
		}}})
	}
	if seek := seekFilter(query.Seek, query.Sort, query.Ascending); seek != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: seek}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: postSort(query.Sort, query.Ascending)}})
	if query.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: query.Limit}})
	}
	return pipeline
}

// nearbyPipeline returns the geo aggregation for located posts around a point
func nearbyPipeline(query model.NearbyQuery) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: "Point"},
				{Key: "coordinates", Value: bson.A{query.Longitude, query.Latitude}},
			}},
			{Key: "distanceField", Value: "distance"},
			{Key: "maxDistance", Value: query.MaxDistance},
			{Key: "spherical", Value: true},
			{Key: "query", Value: bson.D{{Key: "repeat_post", Value: bson.D{{Key: "$exists", Value: false}}}}},
		}}},
	}
	if seek := seekFilter(query.Seek, model.SORT_BY_DISTANCE, false); seek != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: seek}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: postSort(model.SORT_BY_DISTANCE, false)}})
	if query.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: query.Limit}})
	}
	return pipeline
}

// number of applied event ids remembered per post
const APPLIED_EVENTS_WINDOW = 200

// scoreUpdate adds delta to the score of the event's post and records the
// event, unless the post already recorded it
func scoreUpdate(event model.ReactionEvent, delta int64) (bson.D, bson.D) {
	filter := bson.D{
		{Key: "post_id", Value: event.PostID},
		{Key: "applied_events", Value: bson.D{{Key: "$ne", Value: event.EventID}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "score", Value: delta}}},
		{Key: "$push", Value: bson.D{{Key: "applied_events", Value: bson.D{
			{Key: "$each", Value: bson.A{event.EventID}},
			{Key: "$slice", Value: -APPLIED_EVENTS_WINDOW},
		}}}},
	}
	return filter, update
}

// reactionSeek keeps reactions strictly older than cursor
func reactionSeek(cursor *model.Cursor) bson.D {
	return olderThan(cursor, "timestamp", "reaction_id")
}

// olderThan keeps documents whose (timeField, idField) key comes strictly
// after cursor in newest first order
func olderThan(cursor *model.Cursor, timeField string, idField string) bson.D {
	if cursor == nil {
		return nil
	}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: timeField, Value: bson.D{{Key: "$lt", Value: cursor.Timestamp}}}},
		bson.D{
			{Key: timeField, Value: cursor.Timestamp},
			{Key: idField, Value: bson.D{{Key: "$lt", Value: cursor.ID}}},
		},
	}}}
}

// activeUsers keeps the ids of users that are neither deactivated nor deleted
func activeUsers(users []model.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		if !u.Deactivated && !u.Deleted {
			ids = append(ids, u.UserID)
		}
	}
	return ids
}
