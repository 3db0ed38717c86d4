//go:build debug

package trie

// debugChecks enables invariant verification after every mutation
const debugChecks = true
