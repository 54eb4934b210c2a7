// Package task runs generation tasks from acceptance to their terminal
// outcome.
//
// The Executor performs one task synchronously: build the provider request,
// invoke the provider with retries, snapshot the raw body, extract the result
// and write exactly one terminal outcome to the task store. The Dispatcher runs
// executors detached from the HTTP request that created them, and the
// CallbackNotifier posts finished results to client-supplied callback URLs.
package task
