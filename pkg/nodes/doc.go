// Package nodes holds the stock node kinds a flownode host can run: sources,
// operators and sinks built on package node. Register adds them all to a
// registry.
package nodes
