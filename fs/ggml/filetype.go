// filetype.go - GGUF FileType Definitionen
// Enthält: FileType Konstanten, Parsing und Konvertierung zu TensorType

package ggml

import (
	"fmt"
)

// FileType beschreibt die dominante Tensor-Praezision eines Artefakts
// Die numerischen Werte sind durch das GGUF-Format vorgegeben
type FileType uint32

const (
	FileTypeF32  FileType = 0
	FileTypeF16  FileType = 1
	FileTypeQ8_0 FileType = 7
	FileTypeBF16 FileType = 32

	FileTypeUnknown FileType = 1024
)

// ParseFileType parst den Dateityp aus einem String
// Nur vom Konverter unterstützte Typen werden als gültig betrachtet
func ParseFileType(s string) (FileType, error) {
	switch s {
	case "F32":
		return FileTypeF32, nil
	case "F16":
		return FileTypeF16, nil
	case "Q8_0":
		return FileTypeQ8_0, nil
	case "BF16":
		return FileTypeBF16, nil
	default:
		return FileTypeUnknown, fmt.Errorf("unsupported file type %s", s)
	}
}

// String gibt den Dateityp-Namen zurueck
func (t FileType) String() string {
	switch t {
	case FileTypeF32:
		return "F32"
	case FileTypeF16:
		return "F16"
	case FileTypeQ8_0:
		return "Q8_0"
	case FileTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// ToTensorType gibt den zugehoerigen TensorType fuer Gewichts-Tensoren zurueck
func (t FileType) ToTensorType() TensorType {
	switch t {
	case FileTypeF32:
		return TensorTypeF32
	case FileTypeF16:
		return TensorTypeF16
	case FileTypeQ8_0:
		return TensorTypeQ8_0
	case FileTypeBF16:
		return TensorTypeBF16
	default:
		return TensorTypeF32
	}
}
