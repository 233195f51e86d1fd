package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	fallbackName = "upload"

	// Leaves room for a " (n)" collision suffix under the usual 255-byte limit.
	maxNameBytes = 200
)

// Names that Windows refuses regardless of extension.
var reservedStems = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeName turns a client-supplied filename into a single safe path
// element. The result never contains a separator, never starts with a dot
// and is never empty.
func SanitizeName(raw string) string {
	name := norm.NFC.String(raw)
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError, r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)

	name = strings.Trim(name, " .")
	name = truncateName(name, maxNameBytes)
	if name == "" {
		return fallbackName
	}

	stem, ext := splitExt(name)
	if reservedStems[strings.ToUpper(stem)] {
		name = "_" + stem + ext
	}
	return name
}

// ResolveName returns requested if it is free, otherwise the first free
// "stem (n).ext". taken reports whether a candidate is already in use.
func ResolveName(requested string, taken func(string) bool) string {
	if !taken(requested) {
		return requested
	}
	stem, ext := splitExt(requested)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// truncateName cuts name to at most max bytes on a rune boundary,
// keeping a short extension intact.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	stem, ext := splitExt(name)
	if len(ext) > max/4 {
		stem, ext = name, ""
	}
	limit := max - len(ext)
	cut := 0
	for i := range stem {
		if i > limit {
			break
		}
		cut = i
	}
	if len(stem) <= limit {
		cut = len(stem)
	}
	return strings.TrimRight(stem[:cut], " .") + ext
}
