// Package conditions decides whether a policy's applicability conditions
// hold in the current environment.
//
// A Source captures the environment once into an immutable Snapshot. Evaluate
// then checks a Set against that snapshot as a pure conjunction of its
// requirements, without calling back into the source:
//
//	snap, err := source.Snapshot(ctx)
//	if err != nil {
//		return err
//	}
//	active := conditions.Evaluate(snap, record.Conditions)
//
// An empty Set always holds.
package conditions
