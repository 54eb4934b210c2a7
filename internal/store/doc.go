// Package store defines the task store used to hand results from detached
// task executors to pollers.
//
// TaskStore is the interface the rest of the application depends on.
// MemoryTaskStore is the only implementation: records live in process memory,
// expire after a fixed TTL and are lost on restart.
package store
