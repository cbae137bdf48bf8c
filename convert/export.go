// export.go - Predictor nach GGUF: Tensor- und Metadaten-Aufbau
//
// Das Austausch-Format ist GGUF v3. Tensor-Dimensionen werden in
// GGUF-Reihenfolge geschrieben (innerste Dimension zuerst); beim
// Zurueckladen wird wieder nach row-major gedreht. Modell-Konfiguration
// (Eingabe-Namen, Ziel-Namen, Backbone) liegt als KV-Metadaten in der
// Datei, nicht im Dateinamen.
package convert

import (
	"fmt"

	"github.com/riceqc/riceconv/fs/ggml"
	"github.com/riceqc/riceconv/model"
	"github.com/riceqc/riceconv/schema"
)

// Namen der Modell-Schnittstelle, identisch fuer Einzel- und Fused-Export
const (
	InputImage   = "image"
	InputComment = "comment_idx"
	OutputName   = "predictions"
)

// Architektur-Identifier im GGUF-Header
const (
	ArchSingle = "ricereg"
	ArchFused  = "ricereg-fused"
)

// reverseDims dreht eine row-major Form in GGUF-Dimensions-Reihenfolge
func reverseDims(shape []int) []uint64 {
	dims := make([]uint64, len(shape))
	for i, d := range shape {
		dims[len(shape)-1-i] = uint64(d)
	}
	return dims
}

// exportTensors baut die GGUF-Tensoren eines Predictors. prefix ist leer
// fuer Einzel-Export oder "specialist.<n>." im Fused-Export. fileType
// bestimmt die Quantisierung pro Tensor ueber quantKind.
func exportTensors(p *model.Predictor, prefix string, fileType ggml.FileType) ([]*ggml.Tensor, error) {
	params := p.Params().Params()
	ts := make([]*ggml.Tensor, 0, len(params))

	for _, param := range params {
		kind := quantKind(param, fileType)
		ts = append(ts, &ggml.Tensor{
			Name:     prefix + param.Name,
			Kind:     uint32(kind),
			Shape:    reverseDims(param.Shape),
			WriterTo: paramWriter{data: param.Data, kind: kind},
		})
	}
	return ts, nil
}

// baseKV baut die gemeinsamen Metadaten beider Export-Varianten
func baseKV(arch, name string, cfg model.Config, backbone model.Backbone, opts Options) ggml.KV {
	return ggml.KV{
		"general.architecture": arch,
		"general.name":         name,
		"general.type":         "model",
		"general.alignment":    uint32(32),

		arch + ".backbone.name":            backbone.Architecture(),
		arch + ".backbone.features":        uint32(backbone.NumFeatures()),
		arch + ".comment.count":            uint32(cfg.NumComments),
		arch + ".comment.embedding_length": uint32(cfg.EmbedDim),
		arch + ".head.drop_rate":           float32(cfg.DropRate),

		// Eingabe-Vertrag: NCHW Bild mit dynamischem Batch, dazu ein
		// Kommentar-Index pro Bild
		arch + ".input.image.size":     uint32(opts.MobileSize),
		arch + ".input.image.channels": uint32(3),
		arch + ".input.image.name":     InputImage,
		arch + ".input.comment.name":   InputComment,
		arch + ".input.dynamic_batch":  true,
		arch + ".output.name":          OutputName,
	}
}

// ExportPredictor baut KV und Tensoren eines einzelnen Spezialisten
func ExportPredictor(p *model.Predictor, specialist int, fileType ggml.FileType, opts Options) (ggml.KV, []*ggml.Tensor, error) {
	targets, ok := schema.SpecialistTargets[specialist]
	if !ok {
		return nil, nil, fmt.Errorf("unknown specialist %d", specialist)
	}
	if p.NumTargets() != len(targets) {
		return nil, nil, fmt.Errorf("specialist %d: predictor has %d targets, schema expects %d",
			specialist, p.NumTargets(), len(targets))
	}

	kv := baseKV(ArchSingle, fmt.Sprintf("rice_model%d", specialist), p.Config(), p.Backbone(), opts)
	kv["general.file_type"] = fileType
	kv[ArchSingle+".specialist"] = uint32(specialist)
	kv[ArchSingle+".output.count"] = uint32(len(targets))
	kv[ArchSingle+".output.names"] = []string(targets)

	ts, err := exportTensors(p, "", fileType)
	if err != nil {
		return nil, nil, err
	}
	kv["general.parameter_count"] = tensorElements(ts)
	return kv, ts, nil
}

// ExportFused baut KV und Tensoren des kombinierten Modells. Jeder
// Spezialist exportiert unter dem Prefix "specialist.<n>.", die
// Ausgabe-Reihenfolge des Gesamtvektors steht in output.names.
func ExportFused(f *model.Fused, fileType ggml.FileType, opts Options) (ggml.KV, []*ggml.Tensor, error) {
	first, err := f.Predictor(f.Specialists()[0])
	if err != nil {
		return nil, nil, err
	}

	kv := baseKV(ArchFused, "rice_combined", first.Config(), first.Backbone(), opts)
	kv["general.file_type"] = fileType
	kv[ArchFused+".specialist_count"] = uint32(len(f.Specialists()))
	kv[ArchFused+".output.count"] = uint32(f.NumTargets())
	kv[ArchFused+".output.names"] = schema.TargetOrder

	var ts []*ggml.Tensor
	for _, specialist := range f.Specialists() {
		p, err := f.Predictor(specialist)
		if err != nil {
			return nil, nil, err
		}

		targets := f.Assignment()[specialist]
		kv[fmt.Sprintf("%s.specialist.%d.output.names", ArchFused, specialist)] = []string(targets)

		st, err := exportTensors(p, fmt.Sprintf("specialist.%d.", specialist), fileType)
		if err != nil {
			return nil, nil, err
		}
		ts = append(ts, st...)
	}

	kv["general.parameter_count"] = tensorElements(ts)
	return kv, ts, nil
}

// tensorElements summiert die Element-Anzahl aller Tensoren
func tensorElements(ts []*ggml.Tensor) uint64 {
	var n uint64
	for _, t := range ts {
		n += t.Elements()
	}
	return n
}
