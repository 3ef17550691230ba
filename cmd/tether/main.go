// Tether runs behavioral policies against a host runtime.
//
// Policies are enabled and configured through records in a store. The
// engine ticks every active policy, evaluates its conditions, runs its
// lifecycle callbacks and records what it observes in an audit trail.
//
// Usage:
//
//	# Run the engine with the built-in policies
//	tether run --config tether.yaml
//
//	# Check the configuration and every stored policy record
//	tether validate
//
//	# Show the audit events of the last day
//	tether audit query --since 24h
//
//	# Apply the retention period now
//	tether audit prune
//
//	# Show version information
//	tether version
package main

func main() {
	Execute()
}
