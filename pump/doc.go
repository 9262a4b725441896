// Package pump drives frame-accurate playback in lock-step with an external
// object detection service.
//
// Philosophy: one request in flight, never queue. A capture attempt made while
// a request is outstanding is dropped, not buffered (latest-frame-wins).
//
// A round trip looks like:
//
//	Idle --capture+send--> AwaitingResponse --response/failure--> Advancing --advance--> Idle
//	  ^                                                                                   |
//	  +----------------------------- playback settled ------------------------------------+
//
// Response N is fully applied (tracker, analytics, render, clock advance) before
// request N+1 is issued, so playback position and detection data never drift apart.
// Failures (malformed payload, channel failure mid-flight, capture failure,
// optional timeout) resolve the frame as having no detections; the pump still
// advances and never retries a frame.
//
// [Pump] is a plain state machine and is not safe for concurrent use. [Loop]
// owns a Pump on a single goroutine and serialises every external event
// (user commands, channel responses, connectivity, playback settled) into it.
package pump
