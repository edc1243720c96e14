// Package router decodes realtime data frames into typed events.
//
// A frame's topic string is reduced to its bare name (venue path prefixes and
// ":param" suffixes are dropped) and the (name, subject) pair is looked up in a
// closed table built once at init. Known pairs yield *Message[T] with the
// matching payload type from package model. Unknown pairs yield *Unknown and
// payloads that do not fit the expected shape yield *DecodeFailure. Neither is
// an error: bad data is reported inline and never stops a session.
//
// The package also defines Topic, the subscribe-side description of a
// channel, and GrowableBuffer, the unbounded FIFO used between producers and
// slower consumers.
package router
