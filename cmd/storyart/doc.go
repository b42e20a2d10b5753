// Command storyart drives the beat-to-image generation pipeline: it loads
// session snapshots, generates images through the render service, resolves
// and organizes the outputs, and inspects stored sessions.
package main
