package api

import (
	"context"
	"net/http"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// Feed fetches one cursor page of the home feed.
func (c *Client) Feed(ctx context.Context, cursor string, limit int) (*models.PostPage, error) {
	var out models.PostPage
	if err := c.do(ctx, http.MethodGet, pagePath("/posts", cursor, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost publishes a post, optionally carrying an uploaded image URL.
func (c *Client) CreatePost(ctx context.Context, text, imageURL string) (*models.Post, error) {
	var out models.Post
	body := map[string]string{"text": text}
	if imageURL != "" {
		body["imageUrl"] = imageURL
	}
	if err := c.do(ctx, http.MethodPost, "/posts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePost removes the authenticated user's post.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+postID, nil, nil)
}

// LikePost records a like.
func (c *Client) LikePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodPost, "/posts/"+postID+"/like", nil, nil)
}

// UnlikePost removes a like.
func (c *Client) UnlikePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+postID+"/like", nil, nil)
}

// Comments lists a post's comments.
func (c *Client) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out []models.Comment
	if err := c.do(ctx, http.MethodGet, "/posts/"+postID+"/comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID, text string) (*models.Comment, error) {
	var out models.Comment
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/comments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
