package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
)

// UploadResponse carries the durable URL of an uploaded file.
type UploadResponse struct {
	URL string `json:"url"`
}

// Upload posts a local file as multipart form data and returns the durable
// URL the backend assigned. Used for post images and chat attachments.
func (c *Client) Upload(ctx context.Context, fieldName, fileName string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fieldName, filepath.Base(fileName))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "MULTIPART_ERROR", "create multipart part")
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "MULTIPART_ERROR", "copy file content")
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "MULTIPART_ERROR", "finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "BUILD_REQUEST", "build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out UploadResponse
	if err := c.send(c.uploadClient, req, "upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
