package feed

import (
	"context"
	"sync"

	"socialfeed/pkg/model"
)

// DeletedHandle replaces the handle of users that no longer exist
const DeletedHandle = "[deleted]"

// enrich turns a page of entries into the posts returned to viewer. Author
// projections, interaction flags and quoted posts are loaded concurrently;
// the authors of quoted posts are loaded afterwards.
func (e *Engine) enrich(ctx context.Context, reqID int64, viewer int64, page []Entry) ([]model.FeedPost, error) {
	if len(page) == 0 {
		return []model.FeedPost{}, nil
	}

	postIDs := make([]int64, 0, len(page))
	var userIDs, quotedIDs []int64
	for _, entry := range page {
		postIDs = append(postIDs, entry.Post.PostID)
		userIDs = append(userIDs, entry.Post.Author)
		if entry.RepeatedBy != 0 {
			userIDs = append(userIDs, entry.RepeatedBy)
		}
		if a := entry.Post.Attachments; a != nil && a.QuotedPostID != nil {
			quotedIDs = append(quotedIDs, *a.QuotedPostID)
		}
	}
	userIDs = unique(userIDs)
	quotedIDs = unique(quotedIDs)

	var wg sync.WaitGroup
	var users []model.User
	var quoted []model.Post
	var favourited, repeated []int64
	var votes map[int64]string
	var usersErr, quotedErr, favouritedErr, repeatedErr, votesErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		users, usersErr = e.users.GetUsers(ctx, reqID, userIDs)
	}()
	go func() {
		defer wg.Done()
		if len(quotedIDs) > 0 {
			quoted, quotedErr = e.posts.GetPosts(ctx, reqID, quotedIDs)
		}
	}()
	if viewer != 0 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			favourited, favouritedErr = e.reactions.Favourited(ctx, reqID, viewer, postIDs)
		}()
		go func() {
			defer wg.Done()
			repeated, repeatedErr = e.reactions.Repeated(ctx, reqID, viewer, postIDs)
		}()
		go func() {
			defer wg.Done()
			votes, votesErr = e.reactions.Votes(ctx, reqID, viewer, postIDs)
		}()
	}
	wg.Wait()

	for _, err := range []error{usersErr, quotedErr, favouritedErr, repeatedErr, votesErr} {
		if err != nil {
			return nil, err
		}
	}

	usersByID := make(map[int64]model.User, len(users))
	for _, u := range users {
		usersByID[u.UserID] = u
	}
	quotedByID := make(map[int64]model.Post, len(quoted))
	var missingAuthors []int64
	for _, p := range quoted {
		quotedByID[p.PostID] = p
		if _, ok := usersByID[p.Author]; !ok {
			missingAuthors = append(missingAuthors, p.Author)
		}
	}
	if missingAuthors = unique(missingAuthors); len(missingAuthors) > 0 {
		quotedAuthors, err := e.users.GetUsers(ctx, reqID, missingAuthors)
		if err != nil {
			return nil, err
		}
		for _, u := range quotedAuthors {
			usersByID[u.UserID] = u
		}
	}

	favouritedSet := toSet(favourited)
	repeatedSet := toSet(repeated)
	now := e.now().UnixMilli()

	posts := make([]model.FeedPost, 0, len(page))
	for _, entry := range page {
		p := entry.Post
		fp := model.FeedPost{
			PostID:    p.PostID,
			Author:    projectAuthor(usersByID, p.Author),
			Content:   p.Content,
			CreatedAt: p.Timestamp,
			ReplyTo:   p.ReplyTo,
			Languages: p.Languages,
			Mentions:  p.Mentions,
			Hashtags:  p.Hashtags,
			Voted:     votes[p.PostID],
		}
		_, fp.Favourited = favouritedSet[p.PostID]
		_, fp.Repeated = repeatedSet[p.PostID]
		if entry.RepeatedBy != 0 {
			by := projectAuthor(usersByID, entry.RepeatedBy)
			fp.RepeatedBy = &by
		}
		fp.Attachments = buildAttachments(p, quotedByID, usersByID, now)
		posts = append(posts, fp)
	}
	return posts, nil
}

func buildAttachments(p model.Post, quoted map[int64]model.Post, users map[int64]model.User, now int64) *model.FeedAttachments {
	a := p.Attachments
	if a == nil {
		return nil
	}
	var out model.FeedAttachments
	if a.QuotedPostID != nil {
		if q, ok := quoted[*a.QuotedPostID]; ok {
			qp := model.QuotedPost{
				PostID:    q.PostID,
				Author:    projectAuthor(users, q.Author),
				Content:   q.Content,
				CreatedAt: q.Timestamp,
			}
			if q.Attachments != nil {
				qp.Poll = pollAt(q.Attachments.Poll, q.Timestamp, now)
				qp.MediaFile = q.Attachments.MediaFile
			}
			out.Post = &qp
		}
	}
	out.MediaFile = a.MediaFile
	out.Poll = pollAt(a.Poll, p.Timestamp, now)
	if out.Post == nil && out.Poll == nil && out.MediaFile == nil {
		return nil
	}
	return &out
}

// pollAt returns a copy of poll with its expiry computed at now
func pollAt(poll *model.Poll, createdAt int64, now int64) *model.Poll {
	if poll == nil {
		return nil
	}
	p := *poll
	p.Expired = now > createdAt+p.Duration
	return &p
}

func projectAuthor(users map[int64]model.User, userID int64) model.Author {
	u, ok := users[userID]
	if !ok || u.Deleted {
		return model.Author{UserID: userID, Handle: DeletedHandle}
	}
	return model.Author{UserID: userID, Handle: u.Handle}
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
