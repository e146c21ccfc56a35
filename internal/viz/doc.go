// Package viz renders runs for the terminal with lipgloss.
//
//   - [RunPanel]: summary of one stored run with a sparkline per channel
//   - [RunTable]: one line per stored run
//   - [ProgressBar], [SparklineChart]: building blocks shared with the
//     progress view
//
// Colors follow the current [Theme], see [SetTheme].
package viz
