// safetensors_test.go - Tests fuer den Safetensors-Reader
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/x448/float16"
)

// writeSafetensors schreibt eine Safetensors-Datei aus Header und Payload
func writeSafetensors(t *testing.T, name string, header map[string]any, payload []byte) string {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), name)
	data := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	data = append(data, headerJSON...)
	data = append(data, payload...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func f32le(values ...float32) []byte {
	var out []byte
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestReadSafetensors(t *testing.T) {
	payload := f32le(1, 2, 3, 4, 5, 6)
	path := writeSafetensors(t, "model.safetensors", map[string]any{
		"__metadata__": map[string]string{"head": "model2"},
		"head.1.weight": map[string]any{
			"dtype": "F32", "shape": []int{2, 3}, "data_offsets": []int{0, 24},
		},
	}, payload)

	f, err := ReadSafetensors(path)
	if err != nil {
		t.Fatal(err)
	}

	sd, ok := f.Heads["model2"]
	if !ok {
		t.Fatalf("head model2 fehlt, vorhanden: %v", f.HeadNames())
	}
	tensor := sd["head.1.weight"]
	if tensor.Shape[0] != 2 || tensor.Shape[1] != 3 {
		t.Errorf("unerwartete Form %v", tensor.Shape)
	}
	if tensor.Data[4] != 5 {
		t.Errorf("Data[4] = %g, erwartet 5", tensor.Data[4])
	}
}

func TestReadSafetensorsDefaultHead(t *testing.T) {
	path := writeSafetensors(t, "model.safetensors", map[string]any{
		"bias": map[string]any{
			"dtype": "F32", "shape": []int{1}, "data_offsets": []int{0, 4},
		},
	}, f32le(7))

	f, err := ReadSafetensors(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Heads[CanonicalHead]; !ok {
		t.Errorf("erwartet Kopf %q, vorhanden: %v", CanonicalHead, f.HeadNames())
	}
}

func TestReadSafetensorsF16(t *testing.T) {
	var payload []byte
	for _, v := range []float32{0.5, -2} {
		payload = binary.LittleEndian.AppendUint16(payload, float16.Fromfloat32(v).Bits())
	}

	path := writeSafetensors(t, "half.safetensors", map[string]any{
		"w": map[string]any{
			"dtype": "F16", "shape": []int{2}, "data_offsets": []int{0, 4},
		},
	}, payload)

	f, err := ReadSafetensors(path)
	if err != nil {
		t.Fatal(err)
	}
	got := f.Heads[CanonicalHead]["w"].Data
	if got[0] != 0.5 || got[1] != -2 {
		t.Errorf("unerwartete Daten %v", got)
	}
}

func TestReadSafetensorsOffsetsOutOfBounds(t *testing.T) {
	path := writeSafetensors(t, "bad.safetensors", map[string]any{
		"w": map[string]any{
			"dtype": "F32", "shape": []int{4}, "data_offsets": []int{0, 16},
		},
	}, f32le(1))

	if _, err := ReadSafetensors(path); err == nil {
		t.Fatal("erwartet Fehler bei Offsets ausserhalb der Payload")
	}
}

func TestReadSafetensorsShapeMismatch(t *testing.T) {
	path := writeSafetensors(t, "bad.safetensors", map[string]any{
		"w": map[string]any{
			"dtype": "F32", "shape": []int{3}, "data_offsets": []int{0, 8},
		},
	}, f32le(1, 2))

	if _, err := ReadSafetensors(path); err == nil {
		t.Fatal("erwartet Fehler bei Form/Daten-Konflikt")
	}
}

func TestReadUnsupportedExtension(t *testing.T) {
	if _, err := Read("model.onnx"); err == nil {
		t.Fatal("erwartet Fehler fuer unbekannte Endung")
	}
}
