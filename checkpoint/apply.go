// apply.go - Gewichts-Uebernahme in einen Predictor
//
// Kopier-Regel: ein Checkpoint-Parameter wird genau dann uebernommen,
// wenn Name und Form exakt uebereinstimmen. Alle anderen Eintraege werden
// uebersprungen und im Report vermerkt; nicht getroffene Ziel-Parameter
// behalten ihren bisherigen Wert. Die Uebernahme ist eine Wert-Zuweisung
// direkt auf der passenden Teilmenge (idempotent), kein Neuaufbau der
// gesamten Parameter-Sammlung.
package checkpoint

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/riceqc/riceconv/model"
)

// Skip dokumentiert einen uebersprungenen Checkpoint-Eintrag
type Skip struct {
	Name   string
	Reason string
}

// Report ist das Ergebnis einer Gewichts-Uebernahme fuer einen
// Spezialisten. Automatisierung kann degradierte Konvertierungen damit
// programmatisch erkennen statt Logs zu parsen.
type Report struct {
	Specialist int
	Head       string

	// Loaded ist die Anzahl kopierter (oder uebernommener) Parameter
	Loaded int

	// Total ist die Parameter-Anzahl des Ziels nach der Uebernahme
	Total int

	// Skipped listet ignorierte Checkpoint-Eintraege mit Grund
	Skipped []Skip

	// Err ist gesetzt wenn die Uebernahme als Ganzes fehlschlug;
	// der Spezialist behaelt dann seine Initial-Parameter
	Err error
}

// Degraded meldet ob der Spezialist ohne vollstaendige Gewichte laeuft
func (r Report) Degraded() bool {
	return r.Err != nil || r.Loaded < r.Total
}

// String fasst den Report einzeilig zusammen
func (r Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("specialist %d: load failed: %v", r.Specialist, r.Err)
	}
	return fmt.Sprintf("specialist %d: loaded %d/%d parameters from head %q (%d skipped)",
		r.Specialist, r.Loaded, r.Total, r.Head, len(r.Skipped))
}

// Apply uebernimmt passende Parameter aus dem state_dict in den Predictor.
//
// Backbone-Eintraege werden bei Export-Only Backbones unveraendert
// uebernommen: deren Parameter-Satz existiert erst durch den Checkpoint.
// Form-Konflikte sind nie fatal, nur Eintraege im Report.
func Apply(sd StateDict, p *model.Predictor, specialist int) Report {
	r := Report{Specialist: specialist}

	for _, name := range sd.Names() {
		src := sd[name]

		if target, ok := p.Params().Get(name); ok {
			if !target.ShapeEquals(src.Shape) {
				r.Skipped = append(r.Skipped, Skip{
					Name:   name,
					Reason: fmt.Sprintf("shape mismatch: checkpoint %v, target %v", src.Shape, target.Shape),
				})
				continue
			}
			copy(target.Data, src.Data)
			r.Loaded++
			continue
		}

		if strings.HasPrefix(name, "backbone.") && p.Backbone().ExportOnly() {
			data := make([]float32, len(src.Data))
			copy(data, src.Data)
			if err := p.AdoptBackboneParam(name, src.Shape, data); err != nil {
				r.Skipped = append(r.Skipped, Skip{Name: name, Reason: err.Error()})
				continue
			}
			r.Loaded++
			continue
		}

		r.Skipped = append(r.Skipped, Skip{Name: name, Reason: "not present in target"})
	}

	r.Total = p.Params().Len()
	slog.Info("loaded checkpoint weights",
		"specialist", specialist, "loaded", r.Loaded, "total", r.Total, "skipped", len(r.Skipped))
	return r
}

// LoadSpecialist liest einen Checkpoint und uebernimmt die Gewichte des
// gewaehlten Kopfes in den Predictor. Struktur-Fehler (fehlende heads,
// leeres state_dict, kein kanonischer Kopf) sind fatal und lassen den
// Predictor unveraendert.
func LoadSpecialist(path string, p *model.Predictor, specialist int, headOverride string) (Report, error) {
	f, err := Read(path)
	if err != nil {
		return Report{Specialist: specialist, Err: err}, err
	}

	sd, head, err := SelectHead(f, specialist, headOverride)
	if err != nil {
		return Report{Specialist: specialist, Err: err}, err
	}

	r := Apply(sd, p, specialist)
	r.Head = head
	return r, nil
}
