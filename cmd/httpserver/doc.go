// Package main (cmd/httpserver) runs the compressed tree registry server.
//
// The server opens a ledger (badger on disk with --ledger-path, in memory otherwise),
// deploys the registry program with the compression and collection programs it calls,
// and serves the registry API. All transactions are signed with keys derived from
// --kms-seed: the payer, one key per tree label and one mint key per collection label.
//
// Instead of the seed itself, the server accepts Shamir shares of it (see
// registry-client split-seed). The seed is reconstructed in memory from
// --kms-seed-threshold repeated --kms-seed-share flags and, with --kms-payer, checked
// against the payer it must derive.
//
// Off-chain metadata is published when at least one --storage location is given. The
// documents are content addressed and served back under --metadata-base-url, which
// defaults to the API listen address.
//
// Example usage:
//
//	registry-server --listen-addr=0.0.0.0:8080 \
//	    --ledger-path=/var/lib/registry \
//	    --kms-seed=0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef \
//	    --storage=file:///var/lib/registry/metadata \
//	    --airdrop-lamports=100000000000 \
//	    --initialize
package main
