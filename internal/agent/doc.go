// Package agent contains the operation kit: a registry of named ledger
// operations whose JSON parameters are decoded into builder calls, and the
// entry point that hands the resulting transactions to the mode dispatcher.
// It is the piece the HTTP API and the asynchronous job processor call into.
package agent
