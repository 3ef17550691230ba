// Package recorder provides an asynchronous, order-preserving audit Sink.
//
// Record stamps the event, enqueues it and returns. A single background
// worker writes queued events to storage in the order they were recorded.
// Close drains the queue before returning.
package recorder
