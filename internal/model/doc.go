// Package model defines the decoded feed event types shared across quotetap.
//
// Conventions:
//   - Event timestamps: int64 milliseconds since Unix epoch (feed clock)
//   - Receive timestamps: time.Time captured locally when the frame arrived
//   - Prices and sizes: float64, as delivered by the feed
package model
