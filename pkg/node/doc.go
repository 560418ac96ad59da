// Package node is the reactive multi-port execution core.
//
// A node owns a fixed set of input and output ports. Each cycle its Iteration
// Loop races the input channels, asks the Readiness Gate whether enough data
// is present, updates the Latch with the consumed messages, invokes the user
// computation and dispatches the returned values to output ports.
//
// Two gate policies exist:
//   - AllReady: fire once every input holds a message; consume one per input.
//   - AnyReady: fire on the first input that becomes ready; consume only it.
//
// Under AnyReady no priority among simultaneously ready inputs is
// guaranteed. Each consumed message is its own cycle: a latch update and the
// trigger it causes are never coalesced with another message.
//
// The Lifecycle wraps the loop with Setup and Finalize, and with cooperative
// cancellation observed only between cycles. A computation that has started
// always completes and has its outputs dispatched.
package node
