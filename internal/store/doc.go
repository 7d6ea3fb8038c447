// Package store provides the sqlite-backed collaborators around the voting
// core: a read-mostly contest store, an append-only ballot store, and a
// single-slot-per-contest result store.
package store
