// Package feed keeps the home feed current: cursor-paged loading,
// realtime fan-in of post events, and optimistic like handling.
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/optimistic"
	"github.com/kelvinkbk/xavlink-sub001/internal/pager"
	"github.com/kelvinkbk/xavlink-sub001/internal/realtime"
)

// API is the REST slice the feed needs.
type API interface {
	Feed(ctx context.Context, cursor string, limit int) (*models.PostPage, error)
	LikePost(ctx context.Context, postID string) error
	UnlikePost(ctx context.Context, postID string) error
	CreatePost(ctx context.Context, text, imageURL string) (*models.Post, error)
	DeletePost(ctx context.Context, postID string) error
	CreateComment(ctx context.Context, postID, text string) (*models.Comment, error)
}

// Events is the realtime slice the feed needs; satisfied by
// *realtime.Bridge and by test fakes.
type Events interface {
	On(event string, handler realtime.Handler) func()
	OnReconnect(handler func()) func()
}

// View is the feed's live state. Construct with New when the screen
// mounts, Close when it unmounts: subscriptions attach on construction
// and detach exactly once on Close, so events arriving after unmount
// touch nothing.
type View struct {
	api   API
	pager *pager.Pager[models.Post]
	log   *zap.Logger

	mu       sync.Mutex
	closed   bool
	unsubs   []func()
	onChange func()
}

const pageSize = 20

// likeDelta is the wire shape of post_liked / post_unliked.
type likeDelta struct {
	ID         string `json:"id"`
	LikesCount int    `json:"likesCount"`
	UserID     string `json:"userId,omitempty"`
}

// New builds the view and attaches its realtime subscriptions. events may
// be nil (realtime unavailable); the feed then works REST-only.
func New(api API, events Events) *View {
	v := &View{
		api: api,
		log: logger.New("feed"),
	}
	v.pager = pager.New("feed", pageSize, func(ctx context.Context, cursor string, limit int) (pager.Page[models.Post], error) {
		page, err := api.Feed(ctx, cursor, limit)
		if err != nil {
			return pager.Page[models.Post]{}, err
		}
		return pager.Page[models.Post]{Items: page.Posts, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
	})

	if events != nil {
		v.unsubs = append(v.unsubs,
			events.On(realtime.EventNewPost, v.ifMounted(v.handleNewPost)),
			events.On(realtime.EventPostLiked, v.ifMounted(v.handleLikeDelta)),
			events.On(realtime.EventPostUnliked, v.ifMounted(v.handleLikeDelta)),
			events.On(realtime.EventNewComment, v.ifMounted(v.handleNewComment)),
			events.On(realtime.EventPostDeleted, v.ifMounted(v.handlePostDeleted)),
			events.On(realtime.EventPostUpdated, v.ifMounted(v.handlePostUpdated)),
			events.OnReconnect(func() {
				// Missed events are not replayed; refetch from the top.
				if err := v.Refresh(context.Background()); err != nil {
					v.log.Warn("feed refresh after reconnect failed", zap.Error(err))
				}
			}),
		)
	}
	return v
}

// OnChange registers a single callback fired after any visible state
// change. The renderer re-reads Posts() there.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *View) notify() {
	v.mu.Lock()
	fn := v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ifMounted gates a handler on the view still being open.
func (v *View) ifMounted(h realtime.Handler) realtime.Handler {
	return func(data json.RawMessage) {
		v.mu.Lock()
		closed := v.closed
		v.mu.Unlock()
		if closed {
			return
		}
		h(data)
	}
}

// Load fetches the next feed page.
func (v *View) Load(ctx context.Context) error {
	loaded, err := v.pager.Load(ctx)
	if loaded {
		v.notify()
	}
	return err
}

// Refresh reloads the feed from the top.
func (v *View) Refresh(ctx context.Context) error {
	if err := v.pager.Refresh(ctx); err != nil {
		return err
	}
	v.notify()
	return nil
}

// Posts returns the currently loaded feed, newest first.
func (v *View) Posts() []models.Post {
	return v.pager.Items()
}

// Like records a like optimistically: IsLiked and LikesCount flip
// together before the request, and both are restored together if it
// fails. Liking an already-liked post is a no-op.
func (v *View) Like(ctx context.Context, postID string) error {
	return v.setLiked(ctx, postID, true)
}

// Unlike is the inverse of Like, with the same atomicity.
func (v *View) Unlike(ctx context.Context, postID string) error {
	return v.setLiked(ctx, postID, false)
}

func (v *View) setLiked(ctx context.Context, postID string, liked bool) error {
	var before *models.Post
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == postID {
				snapshot := items[i]
				before = &snapshot
				return items
			}
		}
		return items
	})
	if before == nil || before.IsLiked == liked {
		return nil
	}

	return optimistic.Do(ctx, optimistic.Mutation{
		Entity: "like",
		Capture: func() func() {
			snapshot := *before
			return func() {
				v.replacePost(snapshot)
				v.notify()
			}
		},
		Apply: func() {
			updated := *before
			updated.IsLiked = liked
			if liked {
				updated.LikesCount++
			} else if updated.LikesCount > 0 {
				updated.LikesCount--
			}
			v.replacePost(updated)
			v.notify()
		},
		Call: func(ctx context.Context) error {
			if liked {
				return v.api.LikePost(ctx, postID)
			}
			return v.api.UnlikePost(ctx, postID)
		},
	})
}

// Create publishes a post and prepends the server's record to the feed.
// Post creation is not optimistic: there is no temp record, the post
// appears only once the backend assigns it an id.
func (v *View) Create(ctx context.Context, text, imageURL string) (*models.Post, error) {
	post, err := v.api.CreatePost(ctx, text, imageURL)
	if err != nil {
		return nil, err
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == post.ID {
				return items // realtime echo got here first
			}
		}
		return append([]models.Post{*post}, items...)
	})
	v.notify()
	return post, nil
}

// Delete removes a post optimistically.
func (v *View) Delete(ctx context.Context, postID string) error {
	var snapshot []models.Post
	return optimistic.Do(ctx, optimistic.Mutation{
		Entity: "post",
		Capture: func() func() {
			snapshot = v.pager.Items()
			return func() {
				restored := snapshot
				v.pager.Mutate(func([]models.Post) []models.Post { return restored })
				v.notify()
			}
		},
		Apply: func() {
			v.removePost(postID)
			v.notify()
		},
		Call: func(ctx context.Context) error {
			return v.api.DeletePost(ctx, postID)
		},
	})
}

// Comment adds a comment and bumps the post's comment counter once the
// backend confirms.
func (v *View) Comment(ctx context.Context, postID, text string) (*models.Comment, error) {
	comment, err := v.api.CreateComment(ctx, postID, text)
	if err != nil {
		return nil, err
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == postID {
				items[i].CommentsCount++
			}
		}
		return items
	})
	v.notify()
	return comment, nil
}

func (v *View) handleNewPost(data json.RawMessage) {
	var post models.Post
	if err := json.Unmarshal(data, &post); err != nil {
		v.log.Debug("discarding malformed post payload", zap.Error(err))
		return
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == post.ID {
				return items
			}
		}
		return append([]models.Post{post}, items...)
	})
	v.notify()
}

// handleLikeDelta folds a like-count push into the matching post. The
// server's count is authoritative; the viewer's own IsLiked flag is left
// alone because these events also describe other users' likes.
func (v *View) handleLikeDelta(data json.RawMessage) {
	var delta likeDelta
	if err := json.Unmarshal(data, &delta); err != nil || delta.ID == "" {
		return
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == delta.ID {
				items[i].LikesCount = delta.LikesCount
			}
		}
		return items
	})
	v.notify()
}

func (v *View) handleNewComment(data json.RawMessage) {
	var comment models.Comment
	if err := json.Unmarshal(data, &comment); err != nil || comment.PostID == "" {
		return
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == comment.PostID {
				items[i].CommentsCount++
			}
		}
		return items
	})
	v.notify()
}

func (v *View) handlePostDeleted(data json.RawMessage) {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil || ref.ID == "" {
		return
	}
	v.removePost(ref.ID)
	v.notify()
}

func (v *View) handlePostUpdated(data json.RawMessage) {
	var post models.Post
	if err := json.Unmarshal(data, &post); err != nil || post.ID == "" {
		return
	}
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == post.ID {
				// Keep the viewer-local like flag; the push doesn't know it.
				post.IsLiked = items[i].IsLiked
				items[i] = post
			}
		}
		return items
	})
	v.notify()
}

func (v *View) replacePost(post models.Post) {
	v.pager.Mutate(func(items []models.Post) []models.Post {
		for i := range items {
			if items[i].ID == post.ID {
				items[i] = post
			}
		}
		return items
	})
}

func (v *View) removePost(postID string) {
	v.pager.Mutate(func(items []models.Post) []models.Post {
		out := items[:0]
		for _, p := range items {
			if p.ID != postID {
				out = append(out, p)
			}
		}
		return out
	})
}

// Close detaches the realtime subscriptions. Idempotent; handlers racing
// with Close see the closed flag and drop their event.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	v.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}
