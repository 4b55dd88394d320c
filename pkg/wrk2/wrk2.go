package wrk2

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"socialfeed/pkg/metrics"
	"socialfeed/pkg/model"
	"socialfeed/pkg/services"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type serverOptions struct {
	JWTSecret      string `toml:"jwt_secret"`
	InternalSecret string `toml:"internal_secret"`
}

type server struct {
	weaver.Implements[weaver.Main]
	weaver.WithConfig[serverOptions]
	feedService  weaver.Ref[services.FeedService]
	scoreService weaver.Ref[services.ScoreService]
	lis          weaver.Listener `weaver:"wrk2"`
	region       string
}

func Serve(ctx context.Context, s *server) error {
	region, err := utils.Region()
	if err != nil {
		s.Logger(ctx).Error(err.Error())
		return err
	}
	s.region = region

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Get("/timeline", s.instrument("timeline", s.timelineHandler))
	router.Get("/lists", s.instrument("lists", s.listHandler))
	router.Get("/hashtag", s.instrument("hashtag", s.hashtagHandler))
	router.Get("/topmost", s.instrument("topmost", s.topmostHandler))
	router.Get("/search", s.instrument("search", s.searchHandler))
	router.Get("/nearby", s.instrument("nearby", s.nearbyHandler))
	router.Get("/bookmarks", s.instrument("bookmarks", s.bookmarksHandler))
	router.Get("/activity", s.instrument("activity", s.activityHandler))
	router.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/posts", s.instrument("user_posts", s.userPostsHandler))
		r.Get("/topmost", s.instrument("user_topmost", s.userTopmostHandler))
		r.Get("/mentions", s.instrument("mentions", s.mentionsHandler))
		r.Get("/favourites", s.instrument("favourites", s.favouritesHandler))
		r.Get("/votes", s.instrument("votes", s.votesHandler))
	})
	router.Route("/posts/{postID}", func(r chi.Router) {
		r.Get("/", s.instrument("post", s.postHandler))
		r.Get("/parent", s.instrument("post_parent", s.parentHandler))
		r.Get("/replies", s.instrument("post_replies", s.repliesHandler))
		r.Get("/quotes", s.instrument("post_quotes", s.quotesHandler))
	})
	router.Post("/reactions", s.instrument("reactions", s.reactionHandler))

	s.Logger(ctx).Info("wrk2-api available", "addr", s.lis, "region", region)
	return http.Serve(s.lis, router)
}

func (s *server) instrument(label string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	handler := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		fn(w, r)
		metrics.RequestDurationMs.Get(metrics.FeedLabel{Region: s.region, Source: label}).Put(float64(time.Since(start).Milliseconds()))
	}
	return weaver.InstrumentHandlerFunc(label, handler).ServeHTTP
}

// begin assigns a request id and resolves the viewer of r. When the viewer is
// mandatory, anonymous requests are rejected.
func (s *server) begin(w http.ResponseWriter, r *http.Request, handler string, mandatory bool) (int64, int64, bool) {
	ctx := r.Context()
	reqID := rand.Int63()
	viewer, err := viewerFromRequest(r, s.Config().JWTSecret)
	if err == nil && mandatory && viewer == 0 {
		err = errUnauthenticated
	}
	if err != nil {
		s.Logger(ctx).Debug("rejecting unauthenticated request", "req_id", reqID, "handler", handler, "msg", err.Error())
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return 0, 0, false
	}
	s.Logger(ctx).Debug("entering "+handler, "req_id", reqID, "viewer", viewer)
	trace.SpanFromContext(ctx).AddEvent("handling http request",
		trace.WithAttributes(
			attribute.String("handler", handler),
			attribute.Int64("req_id", reqID),
		))
	return reqID, viewer, true
}

func badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *server) writeJSON(ctx context.Context, w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger(ctx).Error("error writing response", "msg", err.Error())
	}
}

func (s *server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "timelineHandler", true)
	if !ok {
		return
	}
	p, err := decodeTimelineParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Timeline(r.Context(), reqID, viewer, p.IncludeReposts, p.IncludeReplies, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) listHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "listHandler", true)
	if !ok {
		return
	}
	p, err := decodeListParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	// lists are private to their owner
	page, err := s.feedService.Get().ListPosts(r.Context(), reqID, viewer, p.Name, p.IncludeReposts, p.IncludeReplies, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) userPostsHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "userPostsHandler", false)
	if !ok {
		return
	}
	p, err := decodeUserPostsParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().UserPosts(r.Context(), reqID, viewer, p.UserID, p.IncludeReposts, p.IncludeReplies, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) hashtagHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "hashtagHandler", false)
	if !ok {
		return
	}
	p, err := decodeHashtagParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Hashtag(r.Context(), reqID, viewer, p.Tag, p.SortBy, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) topmostHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "topmostHandler", false)
	if !ok {
		return
	}
	p, err := decodeTopmostParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Topmost(r.Context(), reqID, viewer, p.Period, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) userTopmostHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "userTopmostHandler", false)
	if !ok {
		return
	}
	p, err := decodeTopmostParams(r)
	if err == nil && p.UserID == 0 {
		err = fmt.Errorf("user id is required")
	}
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().UserTopmost(r.Context(), reqID, viewer, p.UserID, p.Period, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "searchHandler", false)
	if !ok {
		return
	}
	p, err := decodeSearchParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Search(r.Context(), reqID, viewer, p.query(), p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) nearbyHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "nearbyHandler", false)
	if !ok {
		return
	}
	p, err := decodeNearbyParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Nearby(r.Context(), reqID, viewer, p.Longitude, p.Latitude, p.MaxDistance, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) mentionsHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "mentionsHandler", false)
	if !ok {
		return
	}
	p, err := decodeUserParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Mentions(r.Context(), reqID, viewer, p.UserID, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) favouritesHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "favouritesHandler", true)
	if !ok {
		return
	}
	p, err := decodeUserParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := ownedBy(viewer, p.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	page, err := s.feedService.Get().Favourites(r.Context(), reqID, viewer, p.UserID, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) votesHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "votesHandler", true)
	if !ok {
		return
	}
	p, err := decodeUserParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := ownedBy(viewer, p.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	page, err := s.feedService.Get().Votes(r.Context(), reqID, viewer, p.UserID, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) bookmarksHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "bookmarksHandler", true)
	if !ok {
		return
	}
	cursor := r.URL.Query().Get("cursor")
	page, err := s.feedService.Get().Bookmarks(r.Context(), reqID, viewer, cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) postHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "postHandler", false)
	if !ok {
		return
	}
	p, err := decodePostParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Post(r.Context(), reqID, viewer, p.PostID)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) parentHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "parentHandler", false)
	if !ok {
		return
	}
	p, err := decodePostParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().PostParent(r.Context(), reqID, viewer, p.PostID)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) repliesHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "repliesHandler", false)
	if !ok {
		return
	}
	p, err := decodePostParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Replies(r.Context(), reqID, viewer, p.PostID, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) quotesHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "quotesHandler", false)
	if !ok {
		return
	}
	p, err := decodePostParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Quotes(r.Context(), reqID, viewer, p.PostID, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

func (s *server) activityHandler(w http.ResponseWriter, r *http.Request) {
	reqID, viewer, ok := s.begin(w, r, "activityHandler", true)
	if !ok {
		return
	}
	p, err := decodeActivityParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	page, err := s.feedService.Get().Activity(r.Context(), reqID, viewer, p.Period, p.Cursor)
	s.writeJSON(r.Context(), w, page, err)
}

// reactionHandler queues the score change of a reaction the mutation layer
// has already stored for the viewer. Only the mutation layer may call it.
func (s *server) reactionHandler(w http.ResponseWriter, r *http.Request) {
	if !internalCaller(r, s.Config().InternalSecret) {
		http.Error(w, "reactions are published by the mutation layer", http.StatusForbidden)
		return
	}
	reqID, _, ok := s.begin(w, r, "reactionHandler", true)
	if !ok {
		return
	}
	p, err := decodeReactionParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	event := model.ReactionEvent{
		EventID: p.EventID,
		PostID:  p.PostID,
		Kind:    model.ReactionKind(p.Kind),
		Undo:    p.Undo,
		Option:  p.Option,
	}
	err = s.scoreService.Get().PublishReaction(r.Context(), reqID, event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
