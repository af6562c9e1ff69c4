// Package toolset defines the fixed tool capability bundles that agent
// sessions can be bound to, and the registry that serves them. A manifest
// file can override tool descriptions or disable individual tools; the
// registry can be hot-reloaded when the manifest changes.
package toolset
