// Package market implements the Symbol Registry component.
//
// The Symbol Registry:
//   - Loads the venue's symbol list via REST on startup
//   - Reconciles it periodically, detecting listings, delistings and
//     trading status changes
//   - Maintains an in-memory registry of tradable symbols
//   - Validates configured topics against known symbols
package market
