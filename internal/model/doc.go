// Package model defines shared data types used across the book aggregator.
//
// Conventions:
//   - Prices and quantities: float64, exactly as the venues report them
//   - Timestamps: time.Time; venues that report epoch milliseconds are
//     converted at the decode boundary
//   - Instruments: fixed enumeration, compared by identity
package model
