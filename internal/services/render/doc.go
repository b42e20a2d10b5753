// Package render wraps the external image generation service. The service
// accepts prompt parameters over HTTP and writes finished images into a
// date-partitioned output directory; callers resolve the returned filenames
// on disk separately. Calls are retried with classified backoff: transient
// and 5xx failures back off exponentially, 4xx fail immediately, and a
// deadline overrun is retried once with an extended deadline.
package render
