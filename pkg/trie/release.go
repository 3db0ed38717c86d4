//go:build !debug

package trie

const debugChecks = false
