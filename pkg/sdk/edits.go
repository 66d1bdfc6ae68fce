package coderag

import (
	"context"
	"net/http"
)

// ComputeDiff returns the unified diff turning original into updated.
func (c *Client) ComputeDiff(ctx context.Context, original, updated, path string) (Diff, error) {
	var d Diff
	body := map[string]string{"original": original, "updated": updated, "path": path}
	if err := c.call(ctx, "diff.compute", http.MethodPost, "/v1/diff", body, &d); err != nil {
		return Diff{}, err
	}
	return d, nil
}

// ParseDiff splits a unified diff into per-file hunks. Malformed input
// yields no files rather than an error.
func (c *Client) ParseDiff(ctx context.Context, text string) ([]FileDiff, error) {
	var out struct {
		Files []FileDiff `json:"files"`
	}
	if err := c.call(ctx, "diff.parse", http.MethodPost, "/v1/diff/parse", map[string]string{"diff": text}, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// PreviewEdit shows the diff that writing content to path would produce.
func (c *Client) PreviewEdit(ctx context.Context, path, content string) (Preview, error) {
	var p Preview
	body := map[string]any{"path": path, "content": content}
	if err := c.call(ctx, "edit.preview", http.MethodPost, "/v1/edits/preview", body, &p); err != nil {
		return Preview{}, err
	}
	return p, nil
}

// ApplyEdit writes content to path. With create set a missing file is created.
func (c *Client) ApplyEdit(ctx context.Context, path, content string, create bool) (Change, error) {
	var ch Change
	body := map[string]any{"path": path, "content": content, "create": create}
	if err := c.call(ctx, "edit.apply", http.MethodPost, "/v1/edits/apply", body, &ch); err != nil {
		return Change{}, err
	}
	return ch, nil
}

// ApplyPatch applies a unified diff that may span several files.
func (c *Client) ApplyPatch(ctx context.Context, diff string) (EditReport, error) {
	var rep EditReport
	if err := c.call(ctx, "edit.patch", http.MethodPost, "/v1/edits/patch", map[string]string{"diff": diff}, &rep); err != nil {
		return EditReport{}, err
	}
	return rep, nil
}

// ApplyResponse extracts the edits proposed in a model reply and applies them.
func (c *Client) ApplyResponse(ctx context.Context, text string) (EditReport, error) {
	var rep EditReport
	if err := c.call(ctx, "edit.response", http.MethodPost, "/v1/edits/response", map[string]string{"text": text}, &rep); err != nil {
		return EditReport{}, err
	}
	return rep, nil
}
