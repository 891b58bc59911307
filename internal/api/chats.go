package api

import (
	"context"
	"net/http"

	"github.com/kelvinkbk/xavlink-sub001/internal/models"
)

// Chats lists the authenticated user's conversations.
func (c *Client) Chats(ctx context.Context) ([]models.Chat, error) {
	var out []models.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages fetches one cursor page of a chat's history, newest first.
func (c *Client) Messages(ctx context.Context, chatID, cursor string, limit int) (*models.MessagePage, error) {
	var out models.MessagePage
	path := pagePath("/chats/"+chatID+"/messages", cursor, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts a message over REST. The realtime channel with its ack
// is the preferred path; this is the fallback when the socket is down.
func (c *Client) SendMessage(ctx context.Context, chatID, text, attachmentURL, clientID string) (*models.Message, error) {
	var out models.Message
	body := map[string]string{"text": text, "clientId": clientID}
	if attachmentURL != "" {
		body["attachmentUrl"] = attachmentURL
	}
	if err := c.do(ctx, http.MethodPost, "/chats/"+chatID+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
