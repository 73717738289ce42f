// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

// Resolved is a distinguished result for values that may legitimately
// be unavailable without that being an error (spec §7's "missing
// collaborator" category): a manifest entry whose pointed-to pack
// could not be found. Callers decide whether to degrade or fail;
// nothing in this module returns an error for a pack that is simply
// absent.
type Resolved[T any] struct {
	value   T
	missing PackInfo
	present bool
}

// Present wraps a successfully resolved value.
func Present[T any](v T) Resolved[T] {
	return Resolved[T]{value: v, present: true}
}

// Missing wraps the PackInfo describing a pack that could not be
// located, for a caller that wants to report or retry.
func Missing[T any](info PackInfo) Resolved[T] {
	return Resolved[T]{missing: info}
}

// Get returns the resolved value and whether it was present.
func (r Resolved[T]) Get() (T, bool) {
	return r.value, r.present
}

// IsPresent reports whether the value was resolved.
func (r Resolved[T]) IsPresent() bool {
	return r.present
}

// MissingInfo returns the PackInfo of an unresolved entry and true, or
// the zero PackInfo and false if the value was in fact present.
func (r Resolved[T]) MissingInfo() (PackInfo, bool) {
	return r.missing, !r.present
}
