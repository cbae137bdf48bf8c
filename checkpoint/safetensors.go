// safetensors.go - Safetensors Checkpoint Reader
//
// Safetensors-Dateien sind flach: ein JSON-Header mit Tensor-Metadaten,
// danach die rohen Daten. Eine Datei entspricht genau einem Kopf; der
// Kopf-Name kommt aus dem "__metadata__" Eintrag "head" (Default:
// CanonicalHead).
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// safetensorEntry ist ein Header-Eintrag pro Tensor
type safetensorEntry struct {
	DType   string `json:"dtype"`
	Shape   []int  `json:"shape"`
	Offsets [2]int `json:"data_offsets"`
}

// ReadSafetensors liest einen Safetensors-Checkpoint
func ReadSafetensors(path string) (*File, error) {
	slog.Info("reading checkpoint", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%s: truncated safetensors header", path)
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)-8) < headerLen {
		return nil, fmt.Errorf("%s: header length %d exceeds file size", path, headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("%s: parse safetensors header: %w", path, err)
	}

	head := CanonicalHead
	if raw, ok := header["__metadata__"]; ok {
		var meta map[string]string
		if err := json.Unmarshal(raw, &meta); err == nil {
			if name := meta["head"]; name != "" {
				head = name
			}
		}
		delete(header, "__metadata__")
	}

	payload := data[8+headerLen:]
	sd := make(StateDict, len(header))

	for name, raw := range header {
		var entry safetensorEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%s: tensor %s: %w", path, name, err)
		}

		begin, end := entry.Offsets[0], entry.Offsets[1]
		if begin < 0 || end > len(payload) || begin > end {
			return nil, fmt.Errorf("%s: tensor %s: offsets [%d, %d) out of bounds", path, name, begin, end)
		}

		values, err := decodeTensorData(entry.DType, payload[begin:end])
		if err != nil {
			return nil, fmt.Errorf("%s: tensor %s: %w", path, name, err)
		}

		t := Tensor{Shape: entry.Shape, Data: values}
		if t.Elements() != len(values) {
			return nil, fmt.Errorf("%s: tensor %s: %d values for shape %v", path, name, len(values), entry.Shape)
		}
		sd[name] = t
	}

	return &File{Path: path, Heads: map[string]StateDict{head: sd}}, nil
}

// decodeTensorData dekodiert rohe Tensor-Bytes nach float32
func decodeTensorData(dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("F32 payload length %d not divisible by 4", len(raw))
		}
		values := make([]float32, len(raw)/4)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return values, nil
	case "F16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("F16 payload length %d not divisible by 2", len(raw))
		}
		values := make([]float32, len(raw)/2)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return values, nil
	case "BF16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("BF16 payload length %d not divisible by 2", len(raw))
		}
		return bfloat16.DecodeFloat32(raw), nil
	case "I64":
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("I64 payload length %d not divisible by 8", len(raw))
		}
		values := make([]float32, len(raw)/8)
		for i := range values {
			values[i] = float32(int64(binary.LittleEndian.Uint64(raw[i*8:])))
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}
