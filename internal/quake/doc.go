// Package quake defines the normalized earthquake early-warning Event, the
// per-source severity scales, the threshold evaluator, and the frame decoders
// for the two upstream feeds.
//
// Severity is a tagged union: JMA events carry an ordinal seismic intensity
// (shindo) from the fixed ten-level scale 0,1,2,3,4,5弱,5強,6弱,6強,7; CEA
// events carry a floating-point estimated epicentral intensity. Each kind is
// compared on its own scale by Qualifies; the two are never coerced into one
// representation.
//
// DecodeJMA and DecodeCEA turn raw websocket frames into Events. Frames that
// are valid but carry no alertable event (heartbeats, cancellations, training
// or assumption messages) return an error wrapping ErrNotEvent. Anything else
// that cannot produce a complete Event returns a decode error; no partial
// Event is ever constructed.
package quake
