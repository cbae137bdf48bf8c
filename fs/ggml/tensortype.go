// tensortype.go - GGML TensorType Definitionen
// Enthält: TensorType Konstanten, Parsing und Hilfsfunktionen

package ggml

import (
	"fmt"
)

// TensorType ist äquivalent zu ggml_type für einzelne Tensor-Typen
// Hinweis: Diese sind nicht identisch mit FileType
//
// Die numerischen Werte sind durch das GGUF-Format vorgegeben. Der Konverter
// emittiert nur F32, F16, BF16 und Q8_0; die Integer-Typen werden fuer
// Index-Tensoren (comment_idx Vokabular) gelesen.
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeQ8_0 TensorType = 8
	TensorTypeI8   TensorType = 24
	TensorTypeI16  TensorType = 25
	TensorTypeI32  TensorType = 26
	TensorTypeI64  TensorType = 27
	TensorTypeF64  TensorType = 28
	TensorTypeBF16 TensorType = 30
)

// ParseTensorType parst den Tensortyp aus einem String
// Nur vom Konverter unterstützte Typen werden als gültig betrachtet
func ParseTensorType(s string) (TensorType, error) {
	switch s {
	case "F32":
		return TensorTypeF32, nil
	case "F16":
		return TensorTypeF16, nil
	case "Q8_0":
		return TensorTypeQ8_0, nil
	case "BF16":
		return TensorTypeBF16, nil
	default:
		return 0, fmt.Errorf("unsupported quantization type %s", s)
	}
}

// String gibt den Typ-Namen zurueck
func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeQ8_0:
		return "Q8_0"
	case TensorTypeI8:
		return "I8"
	case TensorTypeI16:
		return "I16"
	case TensorTypeI32:
		return "I32"
	case TensorTypeI64:
		return "I64"
	case TensorTypeF64:
		return "F64"
	case TensorTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}
