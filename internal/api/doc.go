// Package api exposes the relay over HTTP: synchronous and asynchronous
// generation, status polling and health. Handlers translate JSON requests
// into domain requests, hand them to the task dispatcher and map outcomes
// back to HTTP responses.
package api
