// Package console renders decoded feed events to a shared writer.
//
// All output goes through one Printer whose lock serializes lines across
// the subscription delivery goroutines.
package console
