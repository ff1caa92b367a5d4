// Package analyze provides the analysis CLI's building blocks: flexible
// time argument parsing, CSV export, report formatting, and chart
// rendering over collected telemetry.
package analyze
