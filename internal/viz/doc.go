// Package viz renders recorded runs.
//
// Terminal output uses lipgloss styling and asciigraph charts:
//
//   - [Report]: summary panel, response and output charts, error sparkline
//     and a braille map of the driven path
//   - [RunTable]: one line per stored run
//   - [Canvas]: braille sub-pixel canvas used for the path map
//
// Image output uses gonum/plot; [SaveResponsePNG] and [SavePathPNG] pick the
// format from the file extension (.png, .svg, .pdf).
package viz
