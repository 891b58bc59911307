package api

import (
	"context"
	"net/http"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// Skills, skill requests, reviews, reports and notifications share simple
// resource-oriented shapes; they live together here.

// Skills lists a user's skills.
func (c *Client) Skills(ctx context.Context, userID string) ([]models.Skill, error) {
	var out []models.Skill
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/skills", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSkill adds a skill to the authenticated user's profile.
func (c *Client) CreateSkill(ctx context.Context, name, description, level string) (*models.Skill, error) {
	var out models.Skill
	body := map[string]string{"name": name, "description": description, "level": level}
	if err := c.do(ctx, http.MethodPost, "/skills", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSkill removes a skill.
func (c *Client) DeleteSkill(ctx context.Context, skillID string) error {
	return c.do(ctx, http.MethodDelete, "/skills/"+skillID, nil, nil)
}

// CreateSkillRequest asks a user for help with one of their skills.
func (c *Client) CreateSkillRequest(ctx context.Context, skillID, message string) (*models.SkillRequest, error) {
	var out models.SkillRequest
	body := map[string]string{"skillId": skillID, "message": message}
	if err := c.do(ctx, http.MethodPost, "/requests", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SkillRequests lists requests addressed to the authenticated user.
func (c *Client) SkillRequests(ctx context.Context) ([]models.SkillRequest, error) {
	var out []models.SkillRequest
	if err := c.do(ctx, http.MethodGet, "/requests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AnswerSkillRequest accepts or declines a request.
func (c *Client) AnswerSkillRequest(ctx context.Context, requestID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, "/requests/"+requestID, body, nil)
}

// Reviews lists the reviews left on a user.
func (c *Client) Reviews(ctx context.Context, userID string) ([]models.Review, error) {
	var out []models.Review
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/reviews", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReview rates a user after a skill exchange.
func (c *Client) CreateReview(ctx context.Context, targetID string, rating int, text string) (*models.Review, error) {
	var out models.Review
	body := map[string]any{"targetId": targetID, "rating": rating, "text": text}
	if err := c.do(ctx, http.MethodPost, "/reviews", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateReport flags content or a user for moderation.
func (c *Client) CreateReport(ctx context.Context, targetType, targetID, reason string) (*models.Report, error) {
	var out models.Report
	body := map[string]string{"targetType": targetType, "targetId": targetID, "reason": reason}
	if err := c.do(ctx, http.MethodPost, "/reports", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notifications lists the authenticated user's notifications.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+notificationID+"/read", nil, nil)
}
