// Package main (cmd/registry_client) is the command line client of the registry API.
//
// Every subcommand but split-seed maps to one API route and prints the JSON response:
//
//	state              print the registry state
//	init               initialize the registry state
//	close              close the registry state account
//	create-tree        allocate a merkle tree and record it in the registry
//	tree               print a merkle tree account
//	mint               mint a leaf, into a collection with --collection
//	create-collection  create a collection the tree authority of --tree can mint into
//	collection         print a collection
//	tx                 print a transaction receipt
//	leaf               recover the leaf index minted by a transaction
//	upload-metadata    publish an off-chain JSON document and print its URI
//	split-seed         split a KMS seed into Shamir shares, offline
//
// Example:
//
//	registry-client create-tree --max-depth 14 --max-buffer-size 64
//	registry-client upload-metadata --file leaf.json
//	registry-client mint --tree <tree> --owner <owner> --name "Leaf #0" --uri <uri>
package main
