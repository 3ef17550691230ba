// Package patch applies surgical textual edits to host operation source when
// wrapping the operation with an interceptor is not enough.
//
//	table := patch.NewTable(host, collector)
//	err := table.Apply("FriendListLoad", "if (hidden)", "if (hidden || blocked)")
//	if errors.Is(err, patch.ErrPatchConflict) {
//	    // host implementation changed; the patch no longer matches
//	}
//
// Re-applying a patch whose replacement is already present is a no-op.
// A missing search pattern is always an error.
package patch
