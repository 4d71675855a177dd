// Package pipeline wires stream connections to the evaluator, the cooldown
// gate and the notification queue.
//
// One Runner per source owns that source's connection lifecycle:
//
//	disconnected → connecting → streaming → (on loss) disconnected
//
// Reconnects back off exponentially without limit and reset after every
// successful dial. Frames are handled in arrival order. For each frame the
// runner records health, decodes, evaluates the threshold, asks the cooldown
// gate and finally submits to the queue. A failure at any step ends that
// frame only.
//
// Coordinator runs all runners plus the dispatch queue. Cancelling its
// context closes every stream; the queue then gets a bounded grace period to
// finish in-flight deliveries before their retries are abandoned.
package pipeline
