// Package preflight verifies environment prerequisites before a pipeline
// run: directory access, render service reachability, and session store
// health.
package preflight
