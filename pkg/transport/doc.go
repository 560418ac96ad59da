// Package transport defines the byte-stream interface links use to carry
// encoded messages between nodes, plus the registry of transports by name.
//
// A Stream moves opaque frames. Framing is the transport's business; the
// payload encoding belongs to the link that owns the stream.
package transport
