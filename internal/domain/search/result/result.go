// Package result defines a scored similarity search hit.
package result

import "github.com/kailas-cloud/coderag/internal/domain/document"

// Result pairs a stored document with its similarity score in [0,1] (or [-1,1] for signed cosine).
type Result struct {
	doc   document.Document
	score float64
}

// New creates a search result.
func New(doc document.Document, score float64) Result {
	return Result{doc: doc, score: score}
}

// Document returns the matched document.
func (r *Result) Document() document.Document { return r.doc }

// Score returns the similarity score.
func (r *Result) Score() float64 { return r.score }
