// Package mode decides whether a query is answered by generation or by returning retrieved context.
package mode

import "fmt"

// Mode is the configured answering strategy.
type Mode string

// Mode constants.
const (
	// Auto generates when a provider is configured and reachable, else falls back to RAG-only.
	Auto       Mode = "auto"
	Generation Mode = "generation"
	RAGOnly    Mode = "rag_only"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Auto || m == Generation || m == RAGOnly
}

// Parse converts a config string into a Mode. Empty means Auto.
func Parse(s string) (Mode, error) {
	if s == "" {
		return Auto, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown answer mode %q", s)
	}
	return m, nil
}

// Decision is the resolved strategy for one query.
type Decision struct {
	Generate bool
	// Reason explains a RAG-only decision. Empty when generating.
	Reason string
}

// Decide resolves the effective strategy.
//
//	configured  | provider configured | reachable | result
//	rag_only    | any                 | any       | rag-only
//	generation  | no                  | any       | rag-only (not configured)
//	generation  | yes                 | any       | generate
//	auto        | no                  | any       | rag-only (not configured)
//	auto        | yes                 | no        | rag-only (unavailable)
//	auto        | yes                 | yes       | generate
//
// Forced generation still tries an unreachable provider; the caller degrades on failure.
func Decide(configured Mode, generatorConfigured, generatorAvailable bool) Decision {
	switch {
	case configured == RAGOnly:
		return Decision{Reason: "rag-only mode configured"}
	case !generatorConfigured:
		return Decision{Reason: "no generation provider configured"}
	case configured == Generation:
		return Decision{Generate: true}
	case !generatorAvailable:
		return Decision{Reason: "generation provider unavailable"}
	default:
		return Decision{Generate: true}
	}
}
