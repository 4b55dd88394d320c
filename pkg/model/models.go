package model

import (
	sn_trace "socialfeed/pkg/trace"

	"github.com/ServiceWeaver/weaver"
)

// Point is a GeoJSON point, coordinates are [longitude, latitude]
type Point struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	Type               string    `bson:"type" json:"type"`
	Coordinates        []float64 `bson:"coordinates" json:"coordinates"`
}

type PollVotes struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	First              int64 `bson:"first" json:"first"`
	Second             int64 `bson:"second" json:"second"`
	Third              int64 `bson:"third,omitempty" json:"third,omitempty"`
	Fourth             int64 `bson:"fourth,omitempty" json:"fourth,omitempty"`
	Nota               int64 `bson:"nota" json:"nota"`
}

type Poll struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	PollID             int64     `bson:"poll_id" json:"id"`
	First              string    `bson:"first" json:"first"`
	Second             string    `bson:"second" json:"second"`
	Third              string    `bson:"third,omitempty" json:"third,omitempty"`
	Fourth             string    `bson:"fourth,omitempty" json:"fourth,omitempty"`
	// Duration is in milliseconds
	Duration int64     `bson:"duration" json:"duration"`
	Votes    PollVotes `bson:"votes" json:"votes"`
	// Expired is computed when the post is read, never stored
	Expired bool `bson:"-" json:"expired"`
}

type MediaFile struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	FileType           string `bson:"file_type" json:"fileType"`
	Src                string `bson:"src" json:"src"`
	PreviewSrc         string `bson:"preview_src,omitempty" json:"previewSrc,omitempty"`
	Description        string `bson:"description,omitempty" json:"description,omitempty"`
}

type Attachments struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	// QuotedPostID is the post quoted by this post
	QuotedPostID *int64     `bson:"post_id,omitempty" json:"postId,omitempty"`
	Poll         *Poll      `bson:"poll,omitempty" json:"poll,omitempty"`
	MediaFile    *MediaFile `bson:"media_file,omitempty" json:"mediaFile,omitempty"`
}

// Post is a stored post. A post with RepeatPost set is a repost marker and
// carries no content or attachments of its own.
type Post struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	PostID             int64        `bson:"post_id"`
	Author             int64        `bson:"author"`
	Content            string       `bson:"content,omitempty"`
	Timestamp          int64        `bson:"timestamp"`
	Score              int64        `bson:"score"`
	ReplyTo            *int64       `bson:"reply_to,omitempty"`
	RepeatPost         *int64       `bson:"repeat_post,omitempty"`
	Attachments        *Attachments `bson:"attachments,omitempty"`
	Languages          []string     `bson:"languages,omitempty"`
	Mentions           []int64      `bson:"mentions,omitempty"`
	Hashtags           []string     `bson:"hashtags,omitempty"`
	Location           *Point       `bson:"location,omitempty"`

	// computed by the store for relevance and geo queries
	Relevance float64 `bson:"relevance,omitempty"`
	Distance  float64 `bson:"distance,omitempty"`
}

func (p Post) IsRepost() bool {
	return p.RepeatPost != nil
}

type User struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	UserID             int64  `bson:"user_id"`
	Handle             string `bson:"handle"`
	Deactivated        bool   `bson:"deactivated"`
	Deleted            bool   `bson:"deleted"`
}

// Author is the public projection of a user attached to a post
type Author struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	UserID             int64  `json:"id"`
	Handle             string `json:"handle"`
}

type MatchMode string

const (
	MATCH_EXACT       MatchMode = "exact"
	MATCH_CONTAINS    MatchMode = "contains"
	MATCH_STARTS_WITH MatchMode = "startsWith"
	MATCH_ENDS_WITH   MatchMode = "endsWith"
)

type MutedWord struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	Word               string    `bson:"word"`
	Match              MatchMode `bson:"match"`
}

// VisibilityState is a read-only snapshot of what a user has blocked or muted
type VisibilityState struct {
	weaver.AutoMarshal
	BlockedUsers []int64
	MutedUsers   []int64
	MutedPosts   []int64
	MutedWords   []MutedWord
}

type SortMode int

const (
	SORT_BY_DATE       SortMode = iota // 0
	SORT_BY_POPULARITY                 // 1
	SORT_BY_RELEVANCE                  // 2
	SORT_BY_DISTANCE                   // 3
)

// Cursor is the sort key of the last item of a page. Only the fields of its
// mode are meaningful.
type Cursor struct {
	weaver.AutoMarshal
	Mode      SortMode
	Timestamp int64
	Score     float64
	Distance  float64
	ID        int64
}

type ReplyFilter string

const (
	REPLIES_INCLUDE ReplyFilter = "include"
	REPLIES_EXCLUDE ReplyFilter = "exclude"
	REPLIES_ONLY    ReplyFilter = "only"
)

// PostQuery describes a candidate set. Zero values mean "no restriction".
type PostQuery struct {
	weaver.AutoMarshal
	// RestrictAuthors limits candidates to Authors, even when Authors is empty
	RestrictAuthors  bool
	Authors          []int64
	ExcludeAuthors   []int64
	Hashtag          string
	MentionOf        int64
	ReplyTo          int64
	QuoteOf          int64
	Text             string
	Since            int64
	Until            int64
	HasMedia         bool
	Replies          ReplyFilter
	ExcludeReposts   bool
	Languages        []string
	AllLanguages     bool
	MediaDescription string
	Sort             SortMode
	Ascending        bool
	Seek             *Cursor
	Limit            int
}

type NearbyQuery struct {
	weaver.AutoMarshal
	Longitude   float64
	Latitude    float64
	MaxDistance float64
	Seek        *Cursor
	Limit       int
}

type ReactionKind string

const (
	REACTION_FAVOURITE ReactionKind = "favourite"
	REACTION_QUOTE     ReactionKind = "quote"
	REACTION_REPLY     ReactionKind = "reply"
	REACTION_VOTE      ReactionKind = "vote"
	REACTION_REPEAT    ReactionKind = "repeat"
	REACTION_BOOKMARK  ReactionKind = "bookmark"
)

// Reaction links a user to a post through a favourite, bookmark or vote
type Reaction struct {
	weaver.AutoMarshal `bson:"-" json:"-"`
	ReactionID         int64 `bson:"reaction_id"`
	PostID             int64 `bson:"post_id"`
	Timestamp          int64 `bson:"timestamp"`
}

type ActivityKind string

const (
	ACTIVITY_FAVOURITED ActivityKind = "favourited"
	ACTIVITY_QUOTED     ActivityKind = "quoted"
	ACTIVITY_VOTED      ActivityKind = "voted"
	ACTIVITY_REPLIED    ActivityKind = "replied"
	ACTIVITY_FOLLOWED   ActivityKind = "followed"
)

// ActivityEvent is a single action by a followed account. PostID is set for
// post-targeted kinds and UserID for ACTIVITY_FOLLOWED.
type ActivityEvent struct {
	weaver.AutoMarshal
	EventID   int64
	Kind      ActivityKind
	ActorID   int64
	PostID    int64
	UserID    int64
	Timestamp int64
}

type QuotedPost struct {
	weaver.AutoMarshal
	PostID    int64      `json:"id"`
	Author    Author     `json:"author"`
	Content   string     `json:"content,omitempty"`
	CreatedAt int64      `json:"createdAt"`
	Poll      *Poll      `json:"poll,omitempty"`
	MediaFile *MediaFile `json:"mediaFile,omitempty"`
}

type FeedAttachments struct {
	weaver.AutoMarshal
	Post      *QuotedPost `json:"post,omitempty"`
	Poll      *Poll       `json:"poll,omitempty"`
	MediaFile *MediaFile  `json:"mediaFile,omitempty"`
}

// FeedPost is a post as returned to a viewer. It never carries the score.
type FeedPost struct {
	weaver.AutoMarshal
	PostID      int64            `json:"id"`
	Author      Author           `json:"author"`
	Content     string           `json:"content,omitempty"`
	CreatedAt   int64            `json:"createdAt"`
	ReplyTo     *int64           `json:"replyTo,omitempty"`
	RepeatedBy  *Author          `json:"repeatedBy,omitempty"`
	Attachments *FeedAttachments `json:"attachments,omitempty"`
	Languages   []string         `json:"languages,omitempty"`
	Mentions    []int64          `json:"mentions,omitempty"`
	Hashtags    []string         `json:"hashtags,omitempty"`
	Favourited  bool             `json:"favourited,omitempty"`
	Repeated    bool             `json:"repeated,omitempty"`
	Voted       string           `json:"voted,omitempty"`
}

type FeedPage struct {
	weaver.AutoMarshal
	Posts  []FeedPost `json:"posts"`
	Cursor string     `json:"cursor,omitempty"`
}

type ActivityEntry struct {
	weaver.AutoMarshal
	EntryID   int64        `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Post      *FeedPost    `json:"post,omitempty"`
	User      *Author      `json:"user,omitempty"`
	Count     int          `json:"count"`
	Timestamp int64        `json:"createdAt"`
}

type ActivityPage struct {
	weaver.AutoMarshal
	Entries []ActivityEntry `json:"entries"`
	Cursor  string          `json:"cursor,omitempty"`
}

// SearchQuery mirrors the search endpoint parameters
type SearchQuery struct {
	weaver.AutoMarshal
	Text             string
	From             string
	NotFrom          string
	Since            int64
	Until            int64
	HasMedia         bool
	Replies          ReplyFilter
	Languages        string
	LanguagesMatch   string
	MediaDescription string
	SortBy           string
	DateOrder        string
}

// ReactionEvent is published by the mutation layer whenever a reaction is
// applied or undone. EventID identifies the reaction so that a redelivered
// event changes the score once.
type ReactionEvent struct {
	weaver.AutoMarshal `json:"-"`
	EventID            int64                `json:"eventid"`
	ReqID              int64                `json:"reqid"`
	PostID             int64                `json:"postid"`
	Kind               ReactionKind         `json:"kind"`
	Undo               bool                 `json:"undo"`
	Option             string               `json:"option,omitempty"`
	Timestamp          int64                `json:"timestamp"`
	SpanContext        sn_trace.SpanContext `json:"span_context"`
}
