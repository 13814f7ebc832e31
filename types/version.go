package types

// Version is the canonical project version.
// The CLI, the signer IPC contract and the journal record shape share this
// version (lockstep versioning).
const Version = "0.3.0"

// ContractVersion is the journal and notification contract version.
const ContractVersion = "0.3.0"
