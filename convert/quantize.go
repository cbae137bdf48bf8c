// quantize.go - Tensor-Quantisierung fuer das Mobile-Format
//
// Quantisiert werden nur 2D-Gewichtsmatrizen, deren innerste Dimension
// auf die Q8_0-Blockgroesse passt. Embeddings, Bias-Vektoren und alle
// 1D-Tensoren bleiben in F32: sie sind klein, und ihr Praezisionsverlust
// schlaegt direkt auf die Ausgabe durch.
package convert

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/riceqc/riceconv/fs/ggml"
	"github.com/riceqc/riceconv/model"
)

// q8Block ist die Q8_0 Blockgroesse in Elementen
const q8Block = 32

// quantKind bestimmt den Tensor-Typ fuer den gewaehlten Datei-Typ
func quantKind(p *model.Param, fileType ggml.FileType) ggml.TensorType {
	if !quantizable(p, fileType) {
		return ggml.TensorTypeF32
	}
	return fileType.ToTensorType()
}

// quantizable prueft ob ein Parameter quantisiert werden darf
func quantizable(p *model.Param, fileType ggml.FileType) bool {
	if fileType == ggml.FileTypeF32 {
		return false
	}
	if len(p.Shape) < 2 {
		return false
	}
	if strings.HasSuffix(p.Name, "_emb.weight") || strings.HasSuffix(p.Name, "_bias.weight") {
		return false
	}
	if fileType == ggml.FileTypeQ8_0 && p.Shape[len(p.Shape)-1]%q8Block != 0 {
		return false
	}
	return true
}

// paramWriter serialisiert Parameter-Daten im Ziel-Tensor-Typ
type paramWriter struct {
	data []float32
	kind ggml.TensorType
}

// WriteTo schreibt die Daten little-endian im gewaehlten Typ
func (w paramWriter) WriteTo(dst io.Writer) (int64, error) {
	var buf bytes.Buffer

	switch w.kind {
	case ggml.TensorTypeF16:
		for _, v := range w.data {
			if err := binary.Write(&buf, binary.LittleEndian, float16.Fromfloat32(v).Bits()); err != nil {
				return 0, err
			}
		}
	case ggml.TensorTypeBF16:
		if _, err := buf.Write(bfloat16.EncodeFloat32(w.data)); err != nil {
			return 0, err
		}
	case ggml.TensorTypeQ8_0:
		if err := quantizeQ8(&buf, w.data); err != nil {
			return 0, err
		}
	default:
		if err := binary.Write(&buf, binary.LittleEndian, w.data); err != nil {
			return 0, err
		}
	}

	n, err := dst.Write(buf.Bytes())
	return int64(n), err
}

// quantizeQ8 schreibt Q8_0 Bloecke: fp16 Skala plus 32 int8 Werte
func quantizeQ8(buf *bytes.Buffer, data []float32) error {
	for start := 0; start < len(data); start += q8Block {
		block := data[start : start+q8Block]

		var amax float32
		for _, v := range block {
			if a := float32(math.Abs(float64(v))); a > amax {
				amax = a
			}
		}

		d := amax / 127
		id := float32(0)
		if d != 0 {
			id = 1 / d
		}

		if err := binary.Write(buf, binary.LittleEndian, float16.Fromfloat32(d).Bits()); err != nil {
			return err
		}
		for _, v := range block {
			q := int8(math.RoundToEven(float64(v * id)))
			if err := buf.WriteByte(byte(q)); err != nil {
				return err
			}
		}
	}
	return nil
}

// dequantizeQ8 stellt float32-Werte aus Q8_0 Bloecken wieder her
func dequantizeQ8(raw []byte, n int) ([]float32, error) {
	blocks := (n + q8Block - 1) / q8Block
	if len(raw) < blocks*(2+q8Block) {
		return nil, fmt.Errorf("Q8_0 payload too short: %d bytes for %d elements", len(raw), n)
	}

	out := make([]float32, 0, blocks*q8Block)
	for b := range blocks {
		start := b * (2 + q8Block)
		d := float16.Frombits(binary.LittleEndian.Uint16(raw[start:])).Float32()
		for _, v := range raw[start+2 : start+2+q8Block] {
			out = append(out, float32(int8(v))*d)
		}
	}
	return out[:n], nil
}
