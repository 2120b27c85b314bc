package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hoist/internal/api"
)

// apiClient is a thin wrapper over the daemon's HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.call(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *apiClient) ListJobs(ctx context.Context, status, watched, starred string) ([]api.JobView, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if watched != "" {
		query.Set("watched", watched)
	}
	if starred != "" {
		query.Set("starred", starred)
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var list api.JobListResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Jobs, nil
}

func (c *apiClient) CreateJob(ctx context.Context, sourceURL string) (api.JobView, error) {
	var view api.JobView
	err := c.call(ctx, http.MethodPost, "/api/jobs",
		map[string]any{"sourceUrl": sourceURL}, &view)
	return view, err
}

func (c *apiClient) GetJob(ctx context.Context, id string) (api.JobView, error) {
	var view api.JobView
	err := c.call(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &view)
	return view, err
}

func (c *apiClient) UpdateFlags(ctx context.Context, id string, update api.FlagsUpdate) (api.JobView, error) {
	var view api.JobView
	err := c.call(ctx, http.MethodPatch, "/api/jobs/"+url.PathEscape(id)+"/flags", update, &view)
	return view, err
}

func (c *apiClient) ListFiles(ctx context.Context, id string) (api.JobFilesResponse, error) {
	var files api.JobFilesResponse
	err := c.call(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/files", nil, &files)
	return files, err
}

func (c *apiClient) RemoveJob(ctx context.Context, id string) (api.JobDeleted, error) {
	var result api.JobDeleted
	err := c.call(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, &result)
	return result, err
}

func (c *apiClient) NotifyTest(ctx context.Context, chatID int64) (string, error) {
	var result struct {
		Sent   bool   `json:"sent"`
		Detail string `json:"detail"`
	}
	err := c.call(ctx, http.MethodPost, "/api/notify/test",
		map[string]any{"chatId": chatID}, &result)
	return result.Detail, err
}

func (c *apiClient) call(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
