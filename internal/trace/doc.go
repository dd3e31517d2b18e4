// Package trace renders machine states as canonical JSON and derives
// content-addressed ids from them.
//
// The journal stores states in this form and golden scenario traces compare
// it byte for byte, so equal states must always serialize identically.
//
// Key design constraints:
//   - NO floats in states - use integers
//   - Object keys in UTF-16 order, strings NFC normalized
//   - Ids are SHA-256 with a versioned domain prefix
package trace
