// Package util contains small helpers shared across helix packages.
// It is internal; nothing here is part of the public API.
package util
