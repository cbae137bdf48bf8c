// Package ggml - Core Types und Interface
//
// Dieses Modul definiert die Kernstrukturen des Artefakt-Formats:
// - GGML: Hauptcontainer fuer geladene Artefakte
// - container: Interface fuer Container-Formate
// - model: Interface fuer Artefakt-Daten (KV + Tensors)
// - Decode: Laedt ein Artefakt aus einem Reader
// - Magic Constants: File-Format Erkennung
package ggml

import (
	"encoding/binary"
	"errors"
	"io"
)

// GGML repraesentiert ein geladenes GGUF-Artefakt
type GGML struct {
	container
	model
	Length int64
}

// model definiert das Interface fuer Artefakt-Daten
type model interface {
	KV() KV
	Tensors() Tensors
}

// container definiert das Interface fuer Container-Formate
type container interface {
	Name() string
	Decode(io.ReadSeeker) (model, error)
}

// Magic Constants fuer File-Formate
const (
	// FILE_MAGIC_GGUF_LE fuer GGUF Little-Endian
	FILE_MAGIC_GGUF_LE = 0x46554747
	// FILE_MAGIC_GGUF_BE fuer GGUF Big-Endian
	FILE_MAGIC_GGUF_BE = 0x47475546
)

// ErrUnsupportedFormat wird zurueckgegeben wenn das Format nicht unterstuetzt wird
var ErrUnsupportedFormat = errors.New("unsupported model format")

// DetectContentType erkennt das Format anhand der Magic-Bytes
func DetectContentType(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	switch binary.LittleEndian.Uint32(b[:4]) {
	case FILE_MAGIC_GGUF_LE, FILE_MAGIC_GGUF_BE:
		return "gguf"
	default:
		return ""
	}
}

// Decode dekodiert ein GGUF-Artefakt aus dem Reader.
//
// maxArraySize bestimmt die maximale Array-Groesse fuer KV-Werte.
// Bei negativem Wert werden alle Arrays gesammelt.
func Decode(rs io.ReadSeeker, maxArraySize int) (*GGML, error) {
	var magic uint32
	if err := binary.Read(rs, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}

	var c container
	switch magic {
	case FILE_MAGIC_GGUF_LE:
		c = &containerGGUF{ByteOrder: binary.LittleEndian, maxArraySize: maxArraySize}
	case FILE_MAGIC_GGUF_BE:
		c = &containerGGUF{ByteOrder: binary.BigEndian, maxArraySize: maxArraySize}
	default:
		return nil, errors.New("invalid file magic")
	}

	model, err := c.Decode(rs)
	if err != nil {
		return nil, err
	}

	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	return &GGML{
		container: c,
		model:     model,
		Length:    offset,
	}, nil
}
