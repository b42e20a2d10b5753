// Package services defines the shared error taxonomy and context plumbing
// used by the render client, the pipeline, and the session store.
package services
