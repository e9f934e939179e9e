// Package pda derives program-controlled identities.
//
// A program-derived address is sha256(seeds || program || "ProgramDerivedAddress")
// rejected when it decodes to a point of the ed25519 curve, so that no private key
// can sign for it. Only the program it was derived for may present it as a signer,
// by supplying the seeds (and the bump that moved the hash off the curve) when it
// invokes another program.
//
// Every derivation is a pure function of its inputs and can be reproduced off-ledger.
package pda
