// Package web holds the page and icon served to clients, embedded into the
// binary.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte

//go:embed favicon.svg
var FaviconSVG []byte
