package wrk2

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"socialfeed/pkg/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct checks the validation tags of s and joins the failures into
// a single readable error
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var msgs []string
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// queryParams reads typed values from the query string and route of a
// request, remembering the first malformed one
type queryParams struct {
	r      *http.Request
	values url.Values
	err    error
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{r: r, values: r.URL.Query()}
}

func (q *queryParams) fail(name string, value string) {
	if q.err == nil {
		q.err = fmt.Errorf("invalid value %q for %s", value, name)
	}
}

func (q *queryParams) str(name string) string {
	return q.values.Get(name)
}

func (q *queryParams) integer(name string) int64 {
	s := q.values.Get(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		q.fail(name, s)
	}
	return v
}

func (q *queryParams) float(name string, def float64) float64 {
	s := q.values.Get(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.fail(name, s)
	}
	return v
}

func (q *queryParams) flag(name string, def bool) bool {
	s := q.values.Get(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		q.fail(name, s)
		return def
	}
	return v
}

// pathID reads a positive id from the route pattern of the request
func (q *queryParams) pathID(name string) int64 {
	s := chi.URLParam(q.r, name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		q.fail(name, s)
	}
	return v
}

// require fails when any of names is absent
func (q *queryParams) require(names ...string) {
	for _, name := range names {
		if q.err == nil && q.values.Get(name) == "" {
			q.err = fmt.Errorf("%s is required", name)
		}
	}
}

// done validates p once every value has been read
func (q *queryParams) done(p interface{}) error {
	if q.err != nil {
		return q.err
	}
	return validateStruct(p)
}

type timelineParams struct {
	IncludeReposts bool
	IncludeReplies bool
	Cursor         string
}

func decodeTimelineParams(r *http.Request) (timelineParams, error) {
	q := newQueryParams(r)
	p := timelineParams{
		IncludeReposts: q.flag("include_reposts", true),
		IncludeReplies: q.flag("include_replies", true),
		Cursor:         q.str("cursor"),
	}
	return p, q.done(p)
}

// listParams names a list of the viewer
type listParams struct {
	Name           string `validate:"required,max=100"`
	IncludeReposts bool
	IncludeReplies bool
	Cursor         string
}

func decodeListParams(r *http.Request) (listParams, error) {
	q := newQueryParams(r)
	p := listParams{
		Name:           q.str("name"),
		IncludeReposts: q.flag("include_reposts", true),
		IncludeReplies: q.flag("include_replies", true),
		Cursor:         q.str("cursor"),
	}
	return p, q.done(p)
}

type userPostsParams struct {
	UserID         int64 `validate:"gt=0"`
	IncludeReposts bool
	IncludeReplies bool
	Cursor         string
}

func decodeUserPostsParams(r *http.Request) (userPostsParams, error) {
	q := newQueryParams(r)
	p := userPostsParams{
		UserID:         q.pathID("userID"),
		IncludeReposts: q.flag("include_reposts", false),
		IncludeReplies: q.flag("include_replies", false),
		Cursor:         q.str("cursor"),
	}
	return p, q.done(p)
}

type hashtagParams struct {
	Tag    string `validate:"required,max=100"`
	SortBy string `validate:"omitempty,oneof=date popular"`
	Cursor string
}

func decodeHashtagParams(r *http.Request) (hashtagParams, error) {
	q := newQueryParams(r)
	p := hashtagParams{
		Tag:    q.str("tag"),
		SortBy: q.str("sort_by"),
		Cursor: q.str("cursor"),
	}
	return p, q.done(p)
}

type topmostParams struct {
	UserID int64  `validate:"gte=0"`
	Period string `validate:"omitempty,oneof=day week month year all"`
	Cursor string
}

// decodeTopmostParams serves both the global and the per user ranking, the
// latter being routed with a userID
func decodeTopmostParams(r *http.Request) (topmostParams, error) {
	q := newQueryParams(r)
	p := topmostParams{
		Period: q.str("period"),
		Cursor: q.str("cursor"),
	}
	if chi.URLParam(r, "userID") != "" {
		p.UserID = q.pathID("userID")
	}
	return p, q.done(p)
}

type searchParams struct {
	Text             string `validate:"max=500"`
	From             string `validate:"max=500"`
	NotFrom          string `validate:"max=500"`
	Since            int64  `validate:"gte=0"`
	Until            int64  `validate:"gte=0"`
	HasMedia         bool
	Replies          string `validate:"omitempty,oneof=include exclude only"`
	Languages        string `validate:"max=200"`
	LanguagesMatch   string `validate:"omitempty,oneof=any all"`
	MediaDescription string `validate:"max=500"`
	SortBy           string `validate:"omitempty,oneof=match date popular"`
	DateOrder        string `validate:"omitempty,oneof=desc asc"`
	Cursor           string
}

func (p searchParams) query() model.SearchQuery {
	return model.SearchQuery{
		Text:             p.Text,
		From:             p.From,
		NotFrom:          p.NotFrom,
		Since:            p.Since,
		Until:            p.Until,
		HasMedia:         p.HasMedia,
		Replies:          model.ReplyFilter(p.Replies),
		Languages:        p.Languages,
		LanguagesMatch:   p.LanguagesMatch,
		MediaDescription: p.MediaDescription,
		SortBy:           p.SortBy,
		DateOrder:        p.DateOrder,
	}
}

func decodeSearchParams(r *http.Request) (searchParams, error) {
	q := newQueryParams(r)
	p := searchParams{
		Text:             q.str("q"),
		From:             q.str("from"),
		NotFrom:          q.str("not_from"),
		Since:            q.integer("since"),
		Until:            q.integer("until"),
		HasMedia:         q.flag("has_media", false),
		Replies:          q.str("replies"),
		Languages:        q.str("languages"),
		LanguagesMatch:   q.str("languages_match"),
		MediaDescription: q.str("media_description"),
		SortBy:           q.str("sort_by"),
		DateOrder:        q.str("date_order"),
		Cursor:           q.str("cursor"),
	}
	return p, q.done(p)
}

// default search radius in meters
const DEFAULT_MAX_DISTANCE float64 = 5000

type nearbyParams struct {
	Longitude   float64 `validate:"gte=-180,lte=180"`
	Latitude    float64 `validate:"gte=-90,lte=90"`
	MaxDistance float64 `validate:"gt=0"`
	Cursor      string
}

func decodeNearbyParams(r *http.Request) (nearbyParams, error) {
	q := newQueryParams(r)
	q.require("lon", "lat")
	p := nearbyParams{
		Longitude:   q.float("lon", 0),
		Latitude:    q.float("lat", 0),
		MaxDistance: q.float("max_distance", DEFAULT_MAX_DISTANCE),
		Cursor:      q.str("cursor"),
	}
	return p, q.done(p)
}

// userParams identifies the user of mention and reaction feeds
type userParams struct {
	UserID int64 `validate:"gt=0"`
	Cursor string
}

func decodeUserParams(r *http.Request) (userParams, error) {
	q := newQueryParams(r)
	p := userParams{
		UserID: q.pathID("userID"),
		Cursor: q.str("cursor"),
	}
	return p, q.done(p)
}

type postParams struct {
	PostID int64 `validate:"gt=0"`
	Cursor string
}

func decodePostParams(r *http.Request) (postParams, error) {
	q := newQueryParams(r)
	p := postParams{
		PostID: q.pathID("postID"),
		Cursor: q.str("cursor"),
	}
	return p, q.done(p)
}

type activityParams struct {
	Period string `validate:"omitempty,oneof=day week month"`
	Cursor string
}

func decodeActivityParams(r *http.Request) (activityParams, error) {
	q := newQueryParams(r)
	p := activityParams{
		Period: q.str("period"),
		Cursor: q.str("cursor"),
	}
	return p, q.done(p)
}

// reactionParams describes a stored reaction, EventID being the id of its
// record in the mutation layer
type reactionParams struct {
	EventID int64  `json:"event_id" validate:"gte=0"`
	PostID  int64  `json:"post_id" validate:"gt=0"`
	Kind    string `json:"kind" validate:"required,oneof=favourite quote reply vote repeat bookmark"`
	Undo    bool   `json:"undo"`
	Option  string `json:"option" validate:"omitempty,oneof=first second third fourth nota"`
}

func decodeReactionParams(r *http.Request) (reactionParams, error) {
	var p reactionParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("invalid reaction body: %w", err)
	}
	if err := validateStruct(p); err != nil {
		return p, err
	}
	if p.Kind == string(model.REACTION_VOTE) && p.Option == "" {
		return p, fmt.Errorf("option is required for votes")
	}
	return p, nil
}
