// Package ggml - KV (Key-Value) Metadaten
//
// Dieses Modul enthaelt den KV-Typ und alle zugehoerigen Methoden:
// - KV: Map fuer GGUF Key-Value Metadaten
// - Artefakt-spezifische Methoden (Architecture, FileType, TargetNames, etc.)
// - Generische Getter (String, Uint, Float, Bool, etc.)
package ggml

import (
	"iter"
	"log/slog"
	"maps"
	"strings"
)

// KV repraesentiert GGUF Key-Value Metadaten
type KV map[string]any

// Architecture gibt die Artefakt-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// Kind gibt den Artefakt-Typ zurueck
func (kv KV) Kind() string {
	return kv.String("general.type", "unknown")
}

// ParameterCount gibt die Anzahl der Parameter zurueck
func (kv KV) ParameterCount() uint64 {
	val, _ := keyValue(kv, "general.parameter_count", uint64(0))
	return val
}

// FileType gibt den GGUF FileType zurueck
func (kv KV) FileType() FileType {
	if t := kv.Uint("general.file_type"); t > 0 {
		return FileType(t)
	}
	return FileTypeF32
}

// TargetNames gibt die Namen der Regressions-Ziele in Ausgabe-Reihenfolge zurueck
func (kv KV) TargetNames() []string {
	return kv.Strings("output.names")
}

// TargetCount gibt die Breite des Ausgabe-Vektors zurueck
func (kv KV) TargetCount() uint64 {
	return uint64(kv.Uint("output.count", uint32(len(kv.TargetNames()))))
}

// InputSize gibt die mobile Eingabe-Kantenlaenge zurueck
func (kv KV) InputSize() uint64 {
	return uint64(kv.Uint("input.image.size", 384))
}

// InputChannels gibt die Anzahl der Bild-Kanaele zurueck
func (kv KV) InputChannels() uint64 {
	return uint64(kv.Uint("input.image.channels", 3))
}

// CommentCount gibt die Groesse des Reissorten-Vokabulars zurueck
func (kv KV) CommentCount() uint64 {
	return uint64(kv.Uint("comment.count", 3))
}

// EmbeddingLength gibt die Breite des Kommentar-Embeddings zurueck
func (kv KV) EmbeddingLength() uint64 {
	return uint64(kv.Uint("comment.embedding_length"))
}

// BackboneName gibt die Backbone-Architektur zurueck
func (kv KV) BackboneName() string {
	return kv.String("backbone.name")
}

// SpecialistCount gibt die Anzahl der fusionierten Spezialisten zurueck
// 1 fuer Einzel-Artefakte
func (kv KV) SpecialistCount() uint64 {
	return uint64(kv.Uint("specialist_count", 1))
}

// String gibt einen String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint gibt einen uint32-Wert zurueck
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Float gibt einen float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Bool gibt einen bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

// Strings gibt ein String-Array zurueck
func (kv KV) Strings(key string, defaultValue ...[]string) []string {
	val, _ := keyValue(kv, key, &array[string]{values: append(defaultValue, []string(nil))[0]})
	return val.values
}

// Ints gibt ein int32-Array zurueck
func (kv KV) Ints(key string, defaultValue ...[]int32) []int32 {
	val, _ := keyValue(kv, key, &array[int32]{values: append(defaultValue, []int32(nil))[0]})
	return val.values
}

// Uints gibt ein uint32-Array zurueck
func (kv KV) Uints(key string, defaultValue ...[]uint32) []uint32 {
	val, _ := keyValue(kv, key, &array[uint32]{values: append(defaultValue, []uint32(nil))[0]})
	return val.values
}

// Floats gibt ein float32-Array zurueck
func (kv KV) Floats(key string, defaultValue ...[]float32) []float32 {
	val, _ := keyValue(kv, key, &array[float32]{values: append(defaultValue, []float32(nil))[0]})
	return val.values
}

// Len gibt die Anzahl der KV-Paare zurueck
func (kv KV) Len() int {
	return len(kv)
}

// Keys gibt einen Iterator ueber alle Keys zurueck
func (kv KV) Keys() iter.Seq[string] {
	return maps.Keys(kv)
}

// Value gibt den Wert fuer einen Key zurueck
func (kv KV) Value(key string) any {
	return kv[key]
}

// Type Constraints fuer keyValue

type valueTypes interface {
	uint8 | int8 | uint16 | int16 |
		uint32 | int32 | uint64 | int64 |
		string | float32 | float64 | bool
}

type arrayValueTypes interface {
	*array[uint8] | *array[int8] | *array[uint16] | *array[int16] |
		*array[uint32] | *array[int32] | *array[uint64] | *array[int64] |
		*array[string] | *array[float32] | *array[float64] | *array[bool]
}

// keyValue ist eine generische Hilfsfunktion zum Lesen von KV-Werten
// Keys ohne "general."-Prefix werden mit der Architektur qualifiziert
func keyValue[T valueTypes | arrayValueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !strings.HasPrefix(key, "general.") {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}

	slog.Debug("key with type not found", "key", key, "default", defaultValue[0])
	return defaultValue[0], false
}
