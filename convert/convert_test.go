// convert_test.go - Tests fuer Export, Import und Pipeline
package convert

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riceqc/riceconv/fs/ggml"
	"github.com/riceqc/riceconv/model"
	"github.com/riceqc/riceconv/schema"
)

// testOptions liefert Optionen mit konkretem Backbone und Temp-Ausgabe
func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		OutputDir:     filepath.Join(t.TempDir(), "models"),
		CheckpointDir: t.TempDir(),
		Backbone:      "pool_stem",
	}
}

// writeCheckpoint schreibt einen minimalen Safetensors-Checkpoint
func writeCheckpoint(t *testing.T, dir string, specialist int, tensors map[string]struct {
	Shape []int
	Value float32
}) string {
	t.Helper()

	header := map[string]any{
		"__metadata__": map[string]string{"head": "primary"},
	}
	var payload []byte
	for name, spec := range tensors {
		n := 1
		for _, d := range spec.Shape {
			n *= d
		}
		begin := len(payload)
		for range n {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(spec.Value))
		}
		header[name] = map[string]any{
			"dtype": "F32", "shape": spec.Shape, "data_offsets": []int{begin, len(payload)},
		}
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	data := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	data = append(data, headerJSON...)
	data = append(data, payload...)

	path := filepath.Join(dir, "rice_model"+string(rune('0'+specialist))+".safetensors")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestQuantKindPolicy(t *testing.T) {
	cases := []struct {
		name     string
		shape    []int
		fileType ggml.FileType
		want     ggml.TensorType
	}{
		{"head.1.weight", []int{2, 96}, ggml.FileTypeF16, ggml.TensorTypeF16},
		{"head.1.weight", []int{2, 96}, ggml.FileTypeQ8_0, ggml.TensorTypeQ8_0},
		{"head.1.weight", []int{2, 96}, ggml.FileTypeF32, ggml.TensorTypeF32},
		{"head.1.weight", []int{2, 96}, ggml.FileTypeBF16, ggml.TensorTypeBF16},
		{"head.1.bias", []int{2}, ggml.FileTypeF16, ggml.TensorTypeF32},
		{"head.1.bias", []int{2}, ggml.FileTypeBF16, ggml.TensorTypeF32},
		{"comment_emb.weight", []int{3, 32}, ggml.FileTypeF16, ggml.TensorTypeF32},
		{"comment_bias.weight", []int{3, 2}, ggml.FileTypeF16, ggml.TensorTypeF32},
		// innerste Dimension passt nicht auf die Q8_0 Blockgroesse
		{"head.1.weight", []int{4, 10}, ggml.FileTypeQ8_0, ggml.TensorTypeF32},
	}

	for _, c := range cases {
		p := &model.Param{Name: c.name, Shape: c.shape}
		assert.Equal(t, c.want, quantKind(p, c.fileType), "%s %v %s", c.name, c.shape, c.fileType)
	}
}

func TestQ8RoundtripError(t *testing.T) {
	data := make([]float32, 64)
	for i := range data {
		data[i] = float32(math.Sin(float64(i)) * 3)
	}

	var buf []byte
	{
		w := paramWriter{data: data, kind: ggml.TensorTypeQ8_0}
		var sink testBuffer
		_, err := w.WriteTo(&sink)
		require.NoError(t, err)
		buf = sink.data
	}

	got, err := dequantizeQ8(buf, len(data))
	require.NoError(t, err)
	for i := range data {
		assert.InDelta(t, data[i], got[i], 0.05, "index %d", i)
	}

	// Ein abgeschnittener Payload ist ein Dekodier-Fehler, kein Panic
	_, err = dequantizeQ8(buf[:len(buf)-1], len(data))
	require.Error(t, err)
	_, err = dequantizeQ8(nil, len(data))
	require.Error(t, err)
}

// testBuffer sammelt geschriebene Bytes
type testBuffer struct{ data []byte }

func (b *testBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func TestExportImportRoundtrip(t *testing.T) {
	opts := testOptions(t)

	p, err := model.NewPredictor(model.Config{Backbone: "pool_stem", NumTargets: 2})
	require.NoError(t, err)

	kv, ts, err := ExportPredictor(p, 1, ggml.FileTypeF32, opts.withDefaults())
	require.NoError(t, err)

	path := filepath.Join(opts.OutputDir, "roundtrip.gguf")
	require.NoError(t, writeModel(path, kv, ts))

	m, err := ReadModel(path)
	require.NoError(t, err)

	assert.Equal(t, ArchSingle, m.KV.Architecture())
	assert.Equal(t, uint64(2), m.KV.TargetCount())
	assert.Equal(t, []string(schema.SpecialistTargets[1]), m.KV.TargetNames())
	assert.Equal(t, "pool_stem", m.KV.BackboneName())
	assert.False(t, m.Fused())

	rebuilt, err := m.BuildPredictor()
	require.NoError(t, err)

	for _, want := range p.Params().Params() {
		got, ok := rebuilt.Params().Get(want.Name)
		require.True(t, ok, want.Name)
		assert.Empty(t, cmp.Diff(want.Data, got.Data), want.Name)
	}
}

func TestExportImportRoundtripBF16(t *testing.T) {
	opts := testOptions(t).withDefaults()

	p, err := model.NewPredictor(model.Config{Backbone: "pool_stem", NumTargets: 2})
	require.NoError(t, err)

	kv, ts, err := ExportPredictor(p, 1, ggml.FileTypeBF16, opts)
	require.NoError(t, err)

	// Deklarierte und geschriebene Tensor-Bytes muessen uebereinstimmen,
	// sonst ueberlappen die parallelen Offset-Writer
	for _, tensor := range ts {
		var sink testBuffer
		n, werr := tensor.WriteTo(&sink)
		require.NoError(t, werr)
		assert.Equal(t, int64(tensor.Size()), n, tensor.Name)
	}

	path := filepath.Join(opts.OutputDir, "roundtrip_bf16.gguf")
	require.NoError(t, writeModel(path, kv, ts))

	m, err := ReadModel(path)
	require.NoError(t, err)
	assert.Equal(t, ggml.FileTypeBF16, m.KV.FileType())

	rebuilt, err := m.BuildPredictor()
	require.NoError(t, err)

	for _, want := range p.Params().Params() {
		got, ok := rebuilt.Params().Get(want.Name)
		require.True(t, ok, want.Name)
		for i := range want.Data {
			assert.InDelta(t, want.Data[i], got.Data[i], 1e-3, "%s[%d]", want.Name, i)
		}
	}
}

func TestExportPredictorRejectsTargetDrift(t *testing.T) {
	opts := testOptions(t).withDefaults()

	// Spezialist 1 hat zwei Ziele, der Predictor aber fuenf
	p, err := model.NewPredictor(model.Config{Backbone: "pool_stem", NumTargets: 5})
	require.NoError(t, err)

	_, _, err = ExportPredictor(p, 1, ggml.FileTypeF32, opts)
	require.Error(t, err)
}

func TestConvertSinglePipeline(t *testing.T) {
	opts := testOptions(t)

	writeCheckpoint(t, opts.CheckpointDir, 1, map[string]struct {
		Shape []int
		Value float32
	}{
		"head.1.bias": {Shape: []int{2}, Value: 1.25},
	})

	path := filepath.Join(opts.CheckpointDir, "rice_model1.safetensors")
	res := ConvertSingle(path, 1, opts)
	require.NoError(t, res.Err)

	assert.Equal(t, 1, res.Report.Loaded)
	assert.Equal(t, "primary", res.Report.Head)
	assert.True(t, res.Report.Degraded())
	assert.FileExists(t, res.InterchangePath)
	assert.FileExists(t, res.MobilePath)

	m, err := ReadModel(res.InterchangePath)
	require.NoError(t, err)
	bias, ok := m.Param("head.1.bias")
	require.True(t, ok)
	assert.Equal(t, []float32{1.25, 1.25}, bias.Data)
}

func TestConvertSingleInterchangeOnly(t *testing.T) {
	opts := testOptions(t)
	opts.InterchangeOnly = true

	path := writeCheckpoint(t, opts.CheckpointDir, 2, map[string]struct {
		Shape []int
		Value float32
	}{
		"head.1.bias": {Shape: []int{2}, Value: 0},
	})

	res := ConvertSingle(path, 2, opts)
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.InterchangePath)
	assert.Empty(t, res.MobilePath)
}

func TestConvertSingleDegradesOnLoadFailure(t *testing.T) {
	opts := testOptions(t)

	// strukturell gueltig, aber leeres state_dict: der Spezialist behaelt
	// seine Initial-Gewichte und wird trotzdem exportiert
	path := writeCheckpoint(t, opts.CheckpointDir, 1, nil)

	res := ConvertSingle(path, 1, opts)
	require.NoError(t, res.Err)
	assert.Error(t, res.Report.Err)
	assert.True(t, res.Report.Degraded())
	assert.FileExists(t, res.InterchangePath)
	assert.FileExists(t, res.MobilePath)

	m, err := ReadModel(res.InterchangePath)
	require.NoError(t, err)
	_, err = m.BuildPredictor()
	require.NoError(t, err)
}

func TestConvertAllContinuesPastBrokenCheckpoint(t *testing.T) {
	opts := testOptions(t)

	// Spezialist 1: unlesbare Datei, Spezialist 3: gueltiger Checkpoint
	broken := filepath.Join(opts.CheckpointDir, "rice_model1.ckpt")
	require.NoError(t, os.WriteFile(broken, []byte("not a checkpoint"), 0o644))

	writeCheckpoint(t, opts.CheckpointDir, 3, map[string]struct {
		Shape []int
		Value float32
	}{
		"head.1.bias": {Shape: []int{4}, Value: 2},
	})

	results := ConvertAll(opts)
	require.Len(t, results, 4)

	byID := make(map[int]Result)
	for _, r := range results {
		byID[r.Specialist] = r
	}

	// der kaputte Checkpoint degradiert, verhindert den Export aber nicht
	assert.NoError(t, byID[1].Err)
	assert.Error(t, byID[1].Report.Err)
	assert.True(t, byID[1].Report.Degraded())
	assert.FileExists(t, byID[1].InterchangePath)

	assert.NoError(t, byID[3].Err)
	assert.Equal(t, 1, byID[3].Report.Loaded)

	// ohne Checkpoint gibt es weiterhin kein Artefakt
	assert.Error(t, byID[2].Err)
	assert.Error(t, byID[4].Err)
}

func TestConvertAllSkipsMissingCheckpoints(t *testing.T) {
	opts := testOptions(t)

	writeCheckpoint(t, opts.CheckpointDir, 3, map[string]struct {
		Shape []int
		Value float32
	}{
		"head.1.bias": {Shape: []int{4}, Value: 2},
	})

	results := ConvertAll(opts)
	require.Len(t, results, 4)

	byID := make(map[int]Result)
	for _, r := range results {
		byID[r.Specialist] = r
	}
	assert.True(t, byID[3].Ok())
	assert.False(t, byID[1].Ok())
	assert.False(t, byID[2].Ok())
	assert.False(t, byID[4].Ok())
}

func TestConvertCombinedDegradesPerSpecialist(t *testing.T) {
	opts := testOptions(t)

	// nur Spezialist 4 hat einen Checkpoint
	writeCheckpoint(t, opts.CheckpointDir, 4, map[string]struct {
		Shape []int
		Value float32
	}{
		"head.1.bias": {Shape: []int{7}, Value: -1},
	})

	results, combined := ConvertCombined(opts)
	require.NoError(t, combined.Err)
	require.Len(t, results, 4)
	assert.FileExists(t, combined.InterchangePath)
	assert.FileExists(t, combined.MobilePath)

	for _, r := range results {
		if r.Specialist == 4 {
			assert.NoError(t, r.Err)
			assert.Equal(t, 1, r.Report.Loaded)
		} else {
			assert.Error(t, r.Err)
		}
	}

	m, err := ReadModel(combined.InterchangePath)
	require.NoError(t, err)
	assert.True(t, m.Fused())
	assert.Equal(t, uint64(4), m.KV.SpecialistCount())
	assert.Equal(t, schema.TargetOrder, m.KV.TargetNames())

	bias, ok := m.Param("specialist.4.head.1.bias")
	require.True(t, ok)
	assert.Equal(t, float32(-1), bias.Data[0])
}

func TestFusedRoundtripForward(t *testing.T) {
	opts := testOptions(t).withDefaults()

	fused, err := model.NewFused(model.Config{Backbone: "pool_stem"})
	require.NoError(t, err)

	kv, ts, err := ExportFused(fused, ggml.FileTypeF32, opts)
	require.NoError(t, err)

	path := filepath.Join(opts.OutputDir, "fused.gguf")
	require.NoError(t, writeModel(path, kv, ts))

	m, err := ReadModel(path)
	require.NoError(t, err)

	rebuilt, err := m.BuildFused()
	require.NoError(t, err)

	batch := model.ImageBatch{Data: make([]float32, 3*16*16), N: 1, C: 3, H: 16, W: 16}
	for i := range batch.Data {
		batch.Data[i] = float32(i%7) * 0.1
	}

	want, err := fused.Forward(batch, []int{schema.CommentWhite})
	require.NoError(t, err)
	got, err := rebuilt.Forward(batch, []int{schema.CommentWhite})
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(want, got))
}

func TestSpecialistFromPath(t *testing.T) {
	cases := []struct {
		path string
		want int
		ok   bool
	}{
		{"checkpoints/rice_model1.ckpt", 1, true},
		{"rice_model4.safetensors", 4, true},
		{"model3.pt", 3, true},
		{"rice_model9.ckpt", 0, false},
		{"final.ckpt", 0, false},
	}
	for _, c := range cases {
		got, err := SpecialistFromPath(c.path)
		if c.ok {
			require.NoError(t, err, c.path)
			assert.Equal(t, c.want, got, c.path)
		} else {
			assert.Error(t, err, c.path)
		}
	}
}
