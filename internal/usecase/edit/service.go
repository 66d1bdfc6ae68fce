// Package edit applies proposed changes to workspace files.
package edit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/diff"
	"github.com/kailas-cloud/coderag/internal/domain/proposal"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// SkipDeletion is the skip reason for diffs that delete a file.
const SkipDeletion = "file deletion is not applied"

// Preview is the diff a proposal would produce, without writing it.
type Preview struct {
	Path   string      `json:"path"`
	Exists bool        `json:"exists"`
	Diff   string      `json:"diff"`
	Hunks  []diff.Hunk `json:"hunks"`
	NoOp   bool        `json:"noop"`
}

// Change describes one written file.
type Change struct {
	Path       string   `json:"path"`
	Created    bool     `json:"created"`
	Diff       string   `json:"diff"`
	Edits      int      `json:"edits"`
	Reconciled int      `json:"reconciled"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	// Reindexed is false when the index refresh was skipped or failed.
	Reindexed bool `json:"reindexed"`
}

// Report aggregates a multi-file apply.
type Report struct {
	Files   []batch.Result
	Changes []Change
	Summary batch.Summary
}

// Service writes edits through the diff engine.
type Service struct {
	files     Files
	applier   *diff.Applier
	reindexer Reindexer
	logger    *zap.Logger
}

// New creates an edit service. reindexer may be nil.
func New(files Files, applier *diff.Applier, reindexer Reindexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{files: files, applier: applier, reindexer: reindexer, logger: logger}
}

// Preview diffs the current content of p against proposed.
func (s *Service) Preview(ctx context.Context, p, proposed string) (Preview, error) {
	original, exists, err := s.current(ctx, p)
	if err != nil {
		return Preview{}, err
	}
	rel := s.files.Rel(p)
	text := diff.Compute(original, diff.MatchLineEndings(original, proposed), rel)
	out := Preview{Path: rel, Exists: exists, Diff: text}
	if parsed := diff.Parse(text); len(parsed) > 0 {
		out.Hunks = parsed[0].Hunks
		out.NoOp = len(out.Hunks) == 1 && out.Hunks[0].IsNoop()
	}
	return out, nil
}

// ApplyProposal replaces p with proposed through a computed diff. A missing
// file is created only when create is set.
func (s *Service) ApplyProposal(ctx context.Context, p, proposed string, create bool) (Change, error) {
	original, exists, err := s.current(ctx, p)
	if err != nil {
		return Change{}, err
	}
	rel := s.files.Rel(p)
	if !exists && !create {
		return Change{}, fmt.Errorf("%s: %w", rel, domain.ErrNotFound)
	}

	res, err := s.applier.ApplyContent(original, diff.MatchLineEndings(original, proposed), rel)
	if err != nil {
		return Change{}, fmt.Errorf("apply %s: %w", rel, err)
	}
	return s.write(ctx, p, original, exists, res)
}

// ApplyPatch applies a unified diff that may span several files. Each file
// section succeeds or fails on its own.
func (s *Service) ApplyPatch(ctx context.Context, diffText string) (Report, error) {
	diffs := diff.Parse(diffText)
	if len(diffs) == 0 {
		return Report{}, domain.InvalidInputf("nothing to apply")
	}

	var rep Report
	for _, d := range diffs {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		s.applyDiff(ctx, d, false, &rep)
	}
	rep.Summary = batch.Summarize(rep.Files)
	return rep, nil
}

// ApplyResponse applies every patch and full-file proposal found in model output.
// Paths taken from the reply must stay inside the workspace root.
func (s *Service) ApplyResponse(ctx context.Context, text string) (Report, error) {
	patches := proposal.Patches(text)
	proposals := proposal.Extract(text)
	if len(patches) == 0 && len(proposals) == 0 {
		return Report{}, domain.InvalidInputf("nothing to apply")
	}

	var rep Report
	for _, patch := range patches {
		diffs := diff.Parse(patch)
		if len(diffs) == 0 {
			rep.Files = append(rep.Files, batch.NewError("patch", domain.InvalidInputf("patch block did not parse")))
			continue
		}
		for _, d := range diffs {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			s.applyDiff(ctx, d, true, &rep)
		}
	}
	for _, prop := range proposals {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if err := s.confine(prop.Path); err != nil {
			rep.Files = append(rep.Files, batch.NewError(prop.Path, err))
			continue
		}
		change, err := s.ApplyProposal(ctx, prop.Path, prop.Code, true)
		if err != nil {
			rep.Files = append(rep.Files, batch.NewError(prop.Path, err))
			continue
		}
		rep.Files = append(rep.Files, batch.NewOK(change.Path).WithDetail("proposal via "+prop.Strategy))
		rep.Changes = append(rep.Changes, change)
	}
	rep.Summary = batch.Summarize(rep.Files)
	return rep, nil
}

func (s *Service) applyDiff(ctx context.Context, d diff.ParsedDiff, confined bool, rep *Report) {
	p := d.Path()
	switch {
	case p == "":
		rep.Files = append(rep.Files, batch.NewError("", domain.InvalidInputf("diff section has no file path")))
		return
	case d.NewPath == "":
		rep.Files = append(rep.Files, batch.NewSkipped(p, SkipDeletion))
		return
	}
	if confined {
		if err := s.confine(p); err != nil {
			rep.Files = append(rep.Files, batch.NewError(p, err))
			return
		}
	}

	var original string
	exists := false
	if d.OldPath != "" {
		content, err := s.files.Read(ctx, p)
		if err != nil {
			rep.Files = append(rep.Files, batch.NewError(p, err))
			return
		}
		original, exists = content, true
	}

	res, err := s.applier.Apply(d, original)
	if err != nil {
		rep.Files = append(rep.Files, batch.NewError(p, err))
		return
	}
	change, err := s.write(ctx, p, original, exists, res)
	if err != nil {
		rep.Files = append(rep.Files, batch.NewError(p, err))
		return
	}
	rep.Files = append(rep.Files, batch.NewOK(change.Path))
	rep.Changes = append(rep.Changes, change)
}

// confine rejects paths that resolve outside the workspace root.
func (s *Service) confine(p string) error {
	if filepath.IsAbs(filepath.FromSlash(s.files.Rel(p))) {
		return domain.InvalidInputf("%s: path is outside the workspace", p)
	}
	return nil
}

// current returns the content of p, or "" with exists=false when it is missing.
func (s *Service) current(ctx context.Context, p string) (string, bool, error) {
	content, err := s.files.Read(ctx, p)
	switch {
	case err == nil:
		return content, true, nil
	case errors.Is(err, domain.ErrNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}

// write stores the applied content. An existing file whose content did not
// change is left untouched.
func (s *Service) write(ctx context.Context, p, original string, exists bool, res diff.Result) (Change, error) {
	rel := s.files.Rel(p)
	if exists && res.Content == original {
		return Change{Path: rel, Diff: diff.Compute(original, original, rel)}, nil
	}
	if err := s.files.Write(ctx, p, res.Content, exists); err != nil {
		return Change{}, fmt.Errorf("write: %w", err)
	}

	lineRange := len(res.Edits) - res.Reconciled
	metrics.DiffHunksTotal.WithLabelValues("line_range").Add(float64(lineRange))
	metrics.DiffHunksTotal.WithLabelValues("reconciled").Add(float64(res.Reconciled))
	metrics.DiffHunksTotal.WithLabelValues("fallback").Add(float64(len(res.Fallbacks)))

	change := Change{
		Path:       rel,
		Created:    !exists,
		Diff:       diff.Compute(original, res.Content, rel),
		Edits:      len(res.Edits),
		Reconciled: res.Reconciled,
	}
	for _, fb := range res.Fallbacks {
		change.Fallbacks = append(change.Fallbacks, fb.Error())
		s.logger.Warn("block reconciliation fell back to line replacement",
			zap.String("path", rel), zap.Error(fb))
	}

	if s.reindexer != nil {
		r := s.reindexer.ReindexFile(ctx, p)
		change.Reindexed = r.Status() == batch.StatusOK
		if r.Status() == batch.StatusError {
			s.logger.Warn("reindex after edit failed", zap.String("path", rel), zap.Error(r.Err()))
		}
	}

	s.logger.Info("edit applied",
		zap.String("path", rel),
		zap.Bool("created", change.Created),
		zap.Int("edits", change.Edits),
		zap.Int("reconciled", change.Reconciled),
		zap.Int("fallbacks", len(change.Fallbacks)),
	)
	return change, nil
}
