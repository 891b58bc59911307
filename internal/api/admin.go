package api

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// Admin/moderation endpoints. List responses are duck-typed (bare array or
// {users: [...]}-style object depending on backend version) and resolved by
// unionList at this boundary only.

// AdminUsers lists all users for the moderation dashboard.
func (c *Client) AdminUsers(ctx context.Context) ([]models.User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &raw); err != nil {
		return nil, err
	}
	users, err := unionList[models.User](raw, "users")
	if err != nil {
		return nil, apperrors.DecodeError("admin users", err)
	}
	return users, nil
}

// AdminPosts lists all posts for the moderation dashboard.
func (c *Client) AdminPosts(ctx context.Context) ([]models.Post, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/admin/posts", nil, &raw); err != nil {
		return nil, err
	}
	posts, err := unionList[models.Post](raw, "posts")
	if err != nil {
		return nil, apperrors.DecodeError("admin posts", err)
	}
	return posts, nil
}

// AdminReports lists open reports.
func (c *Client) AdminReports(ctx context.Context) ([]models.Report, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/admin/reports", nil, &raw); err != nil {
		return nil, err
	}
	reports, err := unionList[models.Report](raw, "reports")
	if err != nil {
		return nil, apperrors.DecodeError("admin reports", err)
	}
	return reports, nil
}

// BanUser suspends an account.
func (c *Client) BanUser(ctx context.Context, userID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/admin/users/"+userID+"/ban", body, nil)
}

// RemovePost takes down a post through moderation.
func (c *Client) RemovePost(ctx context.Context, postID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/admin/posts/"+postID+"/remove", body, nil)
}

// ResolveReport closes a report.
func (c *Client) ResolveReport(ctx context.Context, reportID, resolution string) error {
	body := map[string]string{"resolution": resolution}
	return c.do(ctx, http.MethodPut, "/admin/reports/"+reportID, body, nil)
}
