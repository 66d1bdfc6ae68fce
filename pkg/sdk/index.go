package coderag

import (
	"context"
	"net/http"
	"net/url"
)

// IndexWorkspace indexes every eligible file of the server's workspace.
func (c *Client) IndexWorkspace(ctx context.Context) (IndexReport, error) {
	var rep IndexReport
	if err := c.call(ctx, "index.workspace", http.MethodPost, "/v1/index", nil, &rep); err != nil {
		return IndexReport{}, err
	}
	return rep, nil
}

// ReindexFile reindexes one workspace-relative file.
func (c *Client) ReindexFile(ctx context.Context, path string) (FileResult, error) {
	var res FileResult
	body := map[string]string{"path": path}
	if err := c.call(ctx, "index.file", http.MethodPost, "/v1/index/file", body, &res); err != nil {
		return FileResult{}, err
	}
	return res, nil
}

// RemoveFile drops a file's chunks from the index and returns how many were removed.
func (c *Client) RemoveFile(ctx context.Context, path string) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	p := "/v1/index/file?path=" + url.QueryEscape(path)
	if err := c.call(ctx, "index.remove", http.MethodDelete, p, nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// Stats returns the number of indexed chunks and the indexed files.
func (c *Client) Stats(ctx context.Context) (IndexStats, error) {
	var st IndexStats
	if err := c.call(ctx, "documents.count", http.MethodGet, "/v1/documents/count", nil, &st); err != nil {
		return IndexStats{}, err
	}
	return st, nil
}

// DeleteDocuments removes the chunks matching filter. A nil filter deletes everything.
func (c *Client) DeleteDocuments(ctx context.Context, filter map[string]any) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	body := map[string]any{"filter": filter}
	if err := c.call(ctx, "documents.delete", http.MethodDelete, "/v1/documents", body, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}
