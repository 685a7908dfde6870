// Package model defines core types shared by the classdb packages.
//
// # Identity Types
//
//   - LocationID: process-wide unique, monotonically increasing record id (uint64)
//   - RegisteredLocation: a LocationID bound to a live location handle
//
// # State
//
// A location record moves from StateInitial (registered, not yet indexed)
// to StateProcessed (indexing complete). The transition never goes backwards.
package model
