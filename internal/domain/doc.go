// Package domain contains the core entities of the relay: the generation
// request accepted from clients, the normalized outcome produced by a
// provider round-trip, and the task record that carries an outcome through
// its retention window. It has no knowledge of HTTP, providers or storage.
package domain
