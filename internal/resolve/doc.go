// Package resolve locates files the render service wrote into its
// date-partitioned output directory. The service keys directories by its own
// wall-clock date at write time, so a job spanning local midnight can land
// in a directory the caller does not expect; the resolver searches the
// plausible candidates in order instead of trusting any single date.
package resolve
