// import.go - GGUF-Artefakte zurueck in Predictor-Form laden
//
// Gegenrichtung zum Export, gebraucht von inspect und verify. Tensor-Daten
// werden nach float32 dekodiert und die Dimensionen zurueck nach
// row-major gedreht.
package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/riceqc/riceconv/fs/ggml"
	"github.com/riceqc/riceconv/model"
)

// LoadedModel ist ein gelesenes GGUF-Artefakt
type LoadedModel struct {
	Path    string
	KV      ggml.KV
	Tensors []*model.Param
}

// Param gibt einen Tensor per Name zurueck
func (m *LoadedModel) Param(name string) (*model.Param, bool) {
	for _, p := range m.Tensors {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Fused meldet ob das Artefakt ein kombiniertes Modell ist
func (m *LoadedModel) Fused() bool {
	return m.KV.Architecture() == ArchFused
}

// ReadModel liest ein GGUF-Artefakt vollstaendig ein
func ReadModel(path string) (*LoadedModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := ggml.Decode(f, -1)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	arch := g.KV().Architecture()
	if arch != ArchSingle && arch != ArchFused {
		return nil, fmt.Errorf("%s: unexpected architecture %q", path, arch)
	}

	tensors := g.Tensors()
	m := &LoadedModel{Path: path, KV: g.KV()}

	for _, t := range tensors.Items() {
		raw := make([]byte, t.Size())
		if _, err := f.ReadAt(raw, int64(tensors.Offset+t.Offset)); err != nil {
			return nil, fmt.Errorf("%s: tensor %s: %w", path, t.Name, err)
		}

		shape := make([]int, len(t.Shape))
		for i, d := range t.Shape {
			shape[len(t.Shape)-1-i] = int(d)
		}

		data, err := decodeTensor(ggml.TensorType(t.Kind), raw, int(t.Elements()))
		if err != nil {
			return nil, fmt.Errorf("%s: tensor %s: %w", path, t.Name, err)
		}

		m.Tensors = append(m.Tensors, &model.Param{Name: t.Name, Shape: shape, Data: data})
	}

	return m, nil
}

// decodeTensor dekodiert rohe Tensor-Bytes nach float32
func decodeTensor(kind ggml.TensorType, raw []byte, n int) ([]float32, error) {
	switch kind {
	case ggml.TensorTypeF32:
		data := make([]float32, n)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return data, nil
	case ggml.TensorTypeF16:
		data := make([]float32, n)
		for i := range data {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return data, nil
	case ggml.TensorTypeBF16:
		if len(raw) < n*2 {
			return nil, fmt.Errorf("BF16 payload too short: %d bytes for %d elements", len(raw), n)
		}
		return bfloat16.DecodeFloat32(raw[:n*2]), nil
	case ggml.TensorTypeQ8_0:
		return dequantizeQ8(raw, n)
	default:
		return nil, fmt.Errorf("unsupported tensor type %s", kind)
	}
}

// predictorConfig leitet die Konstruktions-Parameter aus den KV ab
func (m *LoadedModel) predictorConfig() model.Config {
	return model.Config{
		Backbone:    m.KV.BackboneName(),
		NumTargets:  int(m.KV.TargetCount()),
		NumComments: int(m.KV.CommentCount()),
		EmbedDim:    int(m.KV.EmbeddingLength()),
	}
}

// BuildPredictor rekonstruiert einen Predictor aus einem Einzel-Artefakt
func (m *LoadedModel) BuildPredictor() (*model.Predictor, error) {
	if m.Fused() {
		return nil, fmt.Errorf("%s: combined artifact, use BuildFused", m.Path)
	}

	p, err := model.NewPredictor(m.predictorConfig())
	if err != nil {
		return nil, err
	}
	if err := fillParams(p, m.Tensors, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	return p, nil
}

// BuildFused rekonstruiert den Fusions-Router aus einem kombinierten
// Artefakt. Die Spezialist-Zuordnung kommt aus den KV-Metadaten.
func (m *LoadedModel) BuildFused() (*model.Fused, error) {
	if !m.Fused() {
		return nil, fmt.Errorf("%s: single artifact, use BuildPredictor", m.Path)
	}

	cfg := m.predictorConfig()
	cfg.NumTargets = 0

	fused, err := model.NewFused(cfg)
	if err != nil {
		return nil, err
	}

	for _, specialist := range fused.Specialists() {
		p, err := fused.Predictor(specialist)
		if err != nil {
			return nil, err
		}
		prefix := fmt.Sprintf("specialist.%d.", specialist)
		if err := fillParams(p, m.Tensors, prefix); err != nil {
			return nil, fmt.Errorf("%s: %w", m.Path, err)
		}
	}
	return fused, nil
}

// fillParams uebertraegt Artefakt-Tensoren in den Predictor
func fillParams(p *model.Predictor, tensors []*model.Param, prefix string) error {
	for _, t := range tensors {
		if !strings.HasPrefix(t.Name, prefix) {
			continue
		}
		name := strings.TrimPrefix(t.Name, prefix)

		if target, ok := p.Params().Get(name); ok {
			if !target.ShapeEquals(t.Shape) {
				return fmt.Errorf("tensor %s: artifact shape %v, model shape %v", t.Name, t.Shape, target.Shape)
			}
			copy(target.Data, t.Data)
			continue
		}

		if strings.HasPrefix(name, "backbone.") && p.Backbone().ExportOnly() {
			if err := p.AdoptBackboneParam(name, t.Shape, t.Data); err != nil {
				return fmt.Errorf("tensor %s: %w", t.Name, err)
			}
			continue
		}

		return fmt.Errorf("tensor %s not present in model", t.Name)
	}
	return nil
}
