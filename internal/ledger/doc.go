// Package ledger defines the ledger-facing vocabulary shared by the builders,
// the execution engine and the mirror client: entity and transaction
// identifiers, key material, transaction bodies and the signer contract.
//
// The transaction-construction library and the submitting signer are
// consumed through the Transaction and Signer interfaces. Envelope and
// LocalSigner are the reference implementations used by the daemon and by
// tests; they carry an RLP encoding, not the production wire format.
package ledger
