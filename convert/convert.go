// convert.go - Konvertierungs-Pipeline: Checkpoint nach GGUF
// Hauptfunktionen: ConvertSingle, ConvertAll, ConvertCombined
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/riceqc/riceconv/checkpoint"
	"github.com/riceqc/riceconv/fs/ggml"
	"github.com/riceqc/riceconv/model"
	"github.com/riceqc/riceconv/schema"
)

// Options steuert eine Konvertierung
type Options struct {
	// OutputDir ist das Ziel-Verzeichnis der Artefakte (Default: models)
	OutputDir string

	// CheckpointDir ist das Suchverzeichnis fuer ConvertAll/ConvertCombined
	CheckpointDir string

	// MobileSize ist die Bild-Kantenlaenge des Mobile-Exports (Default: 384)
	MobileSize int

	// Backbone ueberschreibt die Backbone-Architektur
	Backbone string

	// Head ueberschreibt die Kopf-Wahl beim Checkpoint-Laden
	Head string

	// InterchangeOnly unterdrueckt den Mobile-Export
	InterchangeOnly bool

	// NoQuantize exportiert das Mobile-Artefakt unquantisiert
	NoQuantize bool

	// MobileType ist der Quantisierungs-Typ des Mobile-Exports (Default: F16)
	MobileType string
}

// withDefaults ergaenzt fehlende Options-Felder
func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = "models"
	}
	if o.CheckpointDir == "" {
		o.CheckpointDir = "checkpoints"
	}
	if o.MobileSize == 0 {
		o.MobileSize = 384
	}
	if o.MobileType == "" {
		o.MobileType = "F16"
	}
	return o
}

// mobileFileType bestimmt den Datei-Typ des Mobile-Exports
func (o Options) mobileFileType() (ggml.FileType, error) {
	if o.NoQuantize {
		return ggml.FileTypeF32, nil
	}
	return ggml.ParseFileType(o.MobileType)
}

// Result ist das Ergebnis einer Spezialist-Konvertierung
type Result struct {
	Specialist      int
	Report          checkpoint.Report
	InterchangePath string
	MobilePath      string
	Err             error
}

// Ok meldet ob die Konvertierung Artefakte geschrieben hat
func (r Result) Ok() bool {
	return r.Err == nil
}

// specialistPattern extrahiert die Spezialist-Nummer aus Dateinamen
var specialistPattern = regexp.MustCompile(`model(\d+)`)

// SpecialistFromPath liest die Spezialist-Nummer aus einem Checkpoint-Pfad
func SpecialistFromPath(path string) (int, error) {
	m := specialistPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("cannot derive specialist number from %q", filepath.Base(path))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	if _, ok := schema.SpecialistTargets[n]; !ok {
		return 0, fmt.Errorf("specialist %d out of range", n)
	}
	return n, nil
}

// findCheckpoint sucht den Checkpoint eines Spezialisten im Verzeichnis
func findCheckpoint(dir string, specialist int) (string, error) {
	for _, stem := range []string{"rice_model%d", "model%d"} {
		for _, ext := range []string{".ckpt", ".pt", ".pth", ".safetensors"} {
			path := filepath.Join(dir, fmt.Sprintf(stem, specialist)+ext)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("no checkpoint for specialist %d in %s", specialist, dir)
}

// newSpecialistPredictor baut den Predictor eines Spezialisten
func newSpecialistPredictor(specialist int, opts Options) (*model.Predictor, error) {
	targets, ok := schema.SpecialistTargets[specialist]
	if !ok {
		return nil, fmt.Errorf("unknown specialist %d", specialist)
	}
	return model.NewPredictor(model.Config{
		Backbone:   opts.Backbone,
		NumTargets: len(targets),
	})
}

// writeModel schreibt KV und Tensoren als GGUF-Datei
func writeModel(path string, kv ggml.KV, ts []*ggml.Tensor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ggml.WriteGGUF(f, kv, ts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ConvertSingle konvertiert einen Spezialist-Checkpoint nach GGUF.
// Teilweise Gewichts-Uebernahme ist kein Fehler; das Ergebnis traegt den
// Lade-Report. Auch ein nicht ladbarer Checkpoint bricht nicht ab: der
// Spezialist degradiert auf seine Initial-Gewichte und wird trotzdem
// exportiert, der Report vermerkt den Fehler.
func ConvertSingle(ckptPath string, specialist int, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{Specialist: specialist}

	p, err := newSpecialistPredictor(specialist, opts)
	if err != nil {
		res.Err = err
		return res
	}

	if res.Report, err = checkpoint.LoadSpecialist(ckptPath, p, specialist, opts.Head); err != nil {
		slog.Warn("specialist degraded to initial weights", "specialist", specialist, "error", err)
	}

	kv, ts, err := ExportPredictor(p, specialist, ggml.FileTypeF32, opts)
	if err != nil {
		res.Err = err
		return res
	}

	res.InterchangePath = filepath.Join(opts.OutputDir, fmt.Sprintf("rice_model%d.gguf", specialist))
	if err := writeModel(res.InterchangePath, kv, ts); err != nil {
		res.Err = err
		return res
	}
	slog.Info("wrote interchange model", "path", res.InterchangePath, "specialist", specialist)

	if opts.InterchangeOnly {
		return res
	}

	fileType, err := opts.mobileFileType()
	if err != nil {
		res.Err = err
		return res
	}

	kv, ts, err = ExportPredictor(p, specialist, fileType, opts)
	if err != nil {
		res.Err = err
		return res
	}

	res.MobilePath = filepath.Join(opts.OutputDir, fmt.Sprintf("rice_model%d_mobile.gguf", specialist))
	if err := writeModel(res.MobilePath, kv, ts); err != nil {
		res.Err = err
		return res
	}
	slog.Info("wrote mobile model", "path", res.MobilePath, "specialist", specialist, "file_type", fileType)

	return res
}

// ConvertAll konvertiert alle Spezialisten aus dem Checkpoint-Verzeichnis.
// Fehlende Checkpoints ueberspringen nur den betroffenen Spezialisten;
// nicht ladbare exportieren degradiert mit Initial-Gewichten.
func ConvertAll(opts Options) []Result {
	opts = opts.withDefaults()

	specialists := schema.SpecialistTargets.Specialists()
	results := make([]Result, 0, len(specialists))

	for _, specialist := range specialists {
		path, err := findCheckpoint(opts.CheckpointDir, specialist)
		if err != nil {
			slog.Warn("skipping specialist", "specialist", specialist, "error", err)
			results = append(results, Result{Specialist: specialist, Err: err})
			continue
		}
		results = append(results, ConvertSingle(path, specialist, opts))
	}
	return results
}

// ConvertCombined baut das fusionierte Modell aus allen Spezialist-
// Checkpoints und exportiert es als ein GGUF. Ein nicht ladbarer
// Spezialist degradiert das Modell (Initial-Gewichte), bricht aber den
// Export nicht ab.
func ConvertCombined(opts Options) ([]Result, Result) {
	opts = opts.withDefaults()
	combined := Result{}

	fused, err := model.NewFused(model.Config{Backbone: opts.Backbone})
	if err != nil {
		combined.Err = err
		return nil, combined
	}

	results := make([]Result, 0, len(fused.Specialists()))
	for _, specialist := range fused.Specialists() {
		res := Result{Specialist: specialist}

		p, err := fused.Predictor(specialist)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}

		path, err := findCheckpoint(opts.CheckpointDir, specialist)
		if err == nil {
			res.Report, err = checkpoint.LoadSpecialist(path, p, specialist, opts.Head)
		}
		if err != nil {
			slog.Warn("specialist degraded to initial weights", "specialist", specialist, "error", err)
			res.Err = err
		}
		results = append(results, res)
	}

	kv, ts, err := ExportFused(fused, ggml.FileTypeF32, opts)
	if err != nil {
		combined.Err = err
		return results, combined
	}

	combined.InterchangePath = filepath.Join(opts.OutputDir, "rice_combined.gguf")
	if err := writeModel(combined.InterchangePath, kv, ts); err != nil {
		combined.Err = err
		return results, combined
	}
	slog.Info("wrote combined model", "path", combined.InterchangePath)

	if opts.InterchangeOnly {
		return results, combined
	}

	fileType, err := opts.mobileFileType()
	if err != nil {
		combined.Err = err
		return results, combined
	}

	kv, ts, err = ExportFused(fused, fileType, opts)
	if err != nil {
		combined.Err = err
		return results, combined
	}

	combined.MobilePath = filepath.Join(opts.OutputDir, "rice_combined_mobile.gguf")
	if err := writeModel(combined.MobilePath, kv, ts); err != nil {
		combined.Err = err
		return results, combined
	}
	slog.Info("wrote combined mobile model", "path", combined.MobilePath)

	return results, combined
}
