package vector

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kailas-cloud/coderag/internal/domain/document"
)

// docDTO is the persisted form of a document. The vector is packed little-endian.
type docDTO struct {
	Text      string         `json:"text"`
	FilePath  string         `json:"filePath"`
	StartLine int            `json:"startLine"`
	EndLine   int            `json:"endLine"`
	Language  string         `json:"language,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	Vector    []byte         `json:"vector"`
}

func toDTO(d *document.Document) docDTO {
	m := d.Metadata()
	return docDTO{
		Text:      d.Text(),
		FilePath:  m.FilePath,
		StartLine: m.StartLine,
		EndLine:   m.EndLine,
		Language:  m.Language,
		Extra:     m.Extra,
		Vector:    vectorToBytes(d.Embedding()),
	}
}

func fromDTO(id string, dto docDTO) (document.Document, error) {
	vec, err := bytesToVector(dto.Vector)
	if err != nil {
		return document.Document{}, err
	}
	meta := document.Metadata{
		FilePath:  dto.FilePath,
		StartLine: dto.StartLine,
		EndLine:   dto.EndLine,
		Language:  dto.Language,
		Extra:     dto.Extra,
	}
	return document.Reconstruct(id, dto.Text, meta, vec), nil
}

// vectorToBytes serializes []float32 (4 bytes per float, little-endian).
func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
