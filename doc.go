// Package holochain provides the runtime core of a peer-to-peer
// application platform.
//
// The state engine is in package 'core'.  The goja-backed zome
// sandbox is in 'ribosome', DNA package loading in 'dna', bbolt
// persistence in 'store', network couplings in 'net', and the
// conductor daemon in `cmd/hcd`.
package holochain
