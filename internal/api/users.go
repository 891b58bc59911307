package api

import (
	"context"
	"net/http"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// GetUser fetches a profile by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser patches the authenticated user's profile.
func (c *Client) UpdateUser(ctx context.Context, fields map[string]any) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPut, "/users/me", fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Follow creates a follow edge toward userID.
func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/users/"+userID+"/follow", nil, nil)
}

// Unfollow removes the follow edge toward userID.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+userID+"/follow", nil, nil)
}

// FollowStatus reports whether the authenticated user follows userID.
func (c *Client) FollowStatus(ctx context.Context, userID string) (bool, error) {
	var out struct {
		IsFollowing bool `json:"isFollowing"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/follow-status", nil, &out); err != nil {
		return false, err
	}
	return out.IsFollowing, nil
}

// Followers fetches one cursor page of a user's followers.
func (c *Client) Followers(ctx context.Context, userID, cursor string, limit int) (*models.UserPage, error) {
	var out models.UserPage
	path := pagePath("/users/"+userID+"/followers", cursor, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Following fetches one cursor page of the users a user follows.
func (c *Client) Following(ctx context.Context, userID, cursor string, limit int) (*models.UserPage, error) {
	var out models.UserPage
	path := pagePath("/users/"+userID+"/following", cursor, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
