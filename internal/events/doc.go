// Package events decouples task execution from whatever reacts to finished
// tasks.
//
// The executor emits a TaskCompletedEvent after writing a terminal outcome;
// handlers registered on an InMemoryEventEmitter (the callback notifier, for
// example) receive it synchronously in registration order.
package events
