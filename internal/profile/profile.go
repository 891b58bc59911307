// Package profile holds one viewed profile: optimistic follow state and
// the follower/following lists.
package profile

import (
	"context"
	"sync"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/optimistic"
	"github.com/kelvinkbk/xavlink-sub001/internal/pager"
)

// API is the REST slice a profile view needs.
type API interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	FollowStatus(ctx context.Context, userID string) (bool, error)
	Followers(ctx context.Context, userID, cursor string, limit int) (*models.UserPage, error)
	Following(ctx context.Context, userID, cursor string, limit int) (*models.UserPage, error)
}

const pageSize = 20

// View is the state of one viewed profile.
type View struct {
	userID string
	api    API

	mu   sync.Mutex
	user *models.User

	// Moves the viewer's own following count alongside the target's
	// follower count; see OnFollowingChange.
	onFollowingDelta func(delta int)

	followers *pager.Pager[models.User]
	following *pager.Pager[models.User]
}

// New builds the view. The follower and following pagers enrich each page
// with the viewer's follow status toward each listed user; enrichment is
// best-effort per item, so one failed lookup leaves only that item's flag
// unset.
func New(userID string, api API) *View {
	v := &View{userID: userID, api: api}

	enrich := func(ctx context.Context, items []models.User) error {
		for i := range items {
			following, err := api.FollowStatus(ctx, items[i].ID)
			if err != nil {
				continue
			}
			items[i].IsFollowing = following
		}
		return nil
	}

	v.followers = pager.New("followers", pageSize, func(ctx context.Context, cursor string, limit int) (pager.Page[models.User], error) {
		page, err := api.Followers(ctx, userID, cursor, limit)
		if err != nil {
			return pager.Page[models.User]{}, err
		}
		return pager.Page[models.User]{Items: page.Users, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
	}).WithEnrich(enrich)

	v.following = pager.New("following", pageSize, func(ctx context.Context, cursor string, limit int) (pager.Page[models.User], error) {
		page, err := api.Following(ctx, userID, cursor, limit)
		if err != nil {
			return pager.Page[models.User]{}, err
		}
		return pager.Page[models.User]{Items: page.Users, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
	}).WithEnrich(enrich)

	return v
}

// Load fetches the profile record.
func (v *View) Load(ctx context.Context) error {
	user, err := v.api.GetUser(ctx, v.userID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.user = user
	v.mu.Unlock()
	return nil
}

// User returns the loaded profile, or nil before Load.
func (v *View) User() *models.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.user == nil {
		return nil
	}
	u := *v.user
	return &u
}

// Follow flips IsFollowing and FollowersCount together before the
// request; a failure restores both together. Following an
// already-followed profile is a no-op.
func (v *View) Follow(ctx context.Context) error {
	return v.setFollowing(ctx, true)
}

// Unfollow is the inverse of Follow, with the same atomicity.
func (v *View) Unfollow(ctx context.Context) error {
	return v.setFollowing(ctx, false)
}

// OnFollowingChange registers a callback invoked with +1 on Follow and -1
// on Unfollow, inside the same mutation as the target's follower count: it
// fires on apply and with the opposite delta on rollback. Wired to the
// session holder so the viewer's own following count stays in lockstep.
func (v *View) OnFollowingChange(fn func(delta int)) {
	v.mu.Lock()
	v.onFollowingDelta = fn
	v.mu.Unlock()
}

func (v *View) setFollowing(ctx context.Context, following bool) error {
	v.mu.Lock()
	if v.user == nil || v.user.IsFollowing == following {
		v.mu.Unlock()
		return nil
	}
	selfDelta := v.onFollowingDelta
	v.mu.Unlock()

	delta := 1
	if !following {
		delta = -1
	}

	return optimistic.Do(ctx, optimistic.Mutation{
		Entity: "follow",
		Capture: func() func() {
			v.mu.Lock()
			snapshot := *v.user
			v.mu.Unlock()
			return func() {
				v.mu.Lock()
				v.user = &snapshot
				v.mu.Unlock()
				if selfDelta != nil {
					selfDelta(-delta)
				}
			}
		},
		Apply: func() {
			v.mu.Lock()
			v.user.IsFollowing = following
			if following {
				v.user.FollowersCount++
			} else if v.user.FollowersCount > 0 {
				v.user.FollowersCount--
			}
			v.mu.Unlock()
			if selfDelta != nil {
				selfDelta(delta)
			}
		},
		Call: func(ctx context.Context) error {
			if following {
				return v.api.Follow(ctx, v.userID)
			}
			return v.api.Unfollow(ctx, v.userID)
		},
	})
}

// LoadFollowers fetches the next follower page.
func (v *View) LoadFollowers(ctx context.Context) error {
	_, err := v.followers.Load(ctx)
	return err
}

// LoadFollowing fetches the next following page.
func (v *View) LoadFollowing(ctx context.Context) error {
	_, err := v.following.Load(ctx)
	return err
}

// FollowersList returns the followers loaded so far.
func (v *View) FollowersList() []models.User {
	return v.followers.Items()
}

// FollowingList returns the followed users loaded so far.
func (v *View) FollowingList() []models.User {
	return v.following.Items()
}

// HasMoreFollowers reports whether another follower page exists.
func (v *View) HasMoreFollowers() bool {
	return v.followers.HasMore()
}

// HasMoreFollowing reports whether another following page exists.
func (v *View) HasMoreFollowing() bool {
	return v.following.HasMore()
}
