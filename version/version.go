// Package version enthaelt die Build-Version
package version

// Version wird beim Build ueber -ldflags gesetzt
var Version string = "0.0.0"
