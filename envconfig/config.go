// config.go - Konfiguration ueber Environment-Variablen
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (RICECONV_DEBUG)
// - OutputDir: Gibt Ausgabe-Verzeichnis zurueck (RICECONV_OUTPUT)
// - CheckpointDir: Gibt Checkpoint-Verzeichnis zurueck (RICECONV_CHECKPOINTS)
// - Head: Gibt Kopf-Override zurueck (RICECONV_HEAD)
// - MobileSize: Gibt Mobile-Bildgroesse zurueck (RICECONV_MOBILE_SIZE)
// - AsMap: Gibt alle Konfigurationen als Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var liest eine Environment-Variable, getrimmt und ohne Quotes
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String gibt eine Funktion zurueck, die einen String liest
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// StringWithDefault gibt eine Funktion zurueck, die einen String mit
// Default-Wert liest
func StringWithDefault(key, defaultValue string) func() string {
	return func() string {
		if s := Var(key); s != "" {
			return s
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via RICECONV_DEBUG
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("RICECONV_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// Debug meldet ob Debug-Logging aktiv ist
var Debug = Bool("RICECONV_DEBUG")

// OutputDir gibt das Ausgabe-Verzeichnis fuer Artefakte zurueck
var OutputDir = StringWithDefault("RICECONV_OUTPUT", "models")

// CheckpointDir gibt das Suchverzeichnis fuer Checkpoints zurueck
var CheckpointDir = StringWithDefault("RICECONV_CHECKPOINTS", "checkpoints")

// Head gibt den Kopf-Override fuer das Checkpoint-Laden zurueck
var Head = String("RICECONV_HEAD")

// MobileSize gibt die Bild-Kantenlaenge des Mobile-Exports zurueck
var MobileSize = Uint("RICECONV_MOBILE_SIZE", 384)

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"RICECONV_DEBUG":       {"RICECONV_DEBUG", LogLevel(), "Show additional debug information (e.g. RICECONV_DEBUG=1)"},
		"RICECONV_OUTPUT":      {"RICECONV_OUTPUT", OutputDir(), "The path to the output directory (default \"models\")"},
		"RICECONV_CHECKPOINTS": {"RICECONV_CHECKPOINTS", CheckpointDir(), "The path to the checkpoint directory (default \"checkpoints\")"},
		"RICECONV_HEAD":        {"RICECONV_HEAD", Head(), "Override the checkpoint head to load"},
		"RICECONV_MOBILE_SIZE": {"RICECONV_MOBILE_SIZE", MobileSize(), "Image edge length for the mobile export (default 384)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
