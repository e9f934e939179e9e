/*
Package api defines the wire types and server configuration of the registry HTTP API.

The API is served by package httpserver and consumed by package api/clients:

	GET    /api/registry                          registry state
	POST   /api/registry/initialize               create the registry state
	DELETE /api/registry                          close the registry state
	POST   /api/trees                             provision and register a tree
	GET    /api/trees/{tree}                      committed tree state
	POST   /api/trees/{tree}/mint                 append a leaf
	POST   /api/trees/{tree}/mint_to_collection   append a leaf verified in a collection
	POST   /api/collections                       create a collection owned by a tree authority
	GET    /api/collections/{mint}                committed collection state
	GET    /api/transactions/{signature}          transaction receipt
	GET    /api/transactions/{signature}/leaf     leaf recovered from a mint receipt (?tree=)
	POST   /api/metadata                          publish off-chain JSON (?type=leaf|collection)
	GET    /api/metadata/{type}/{id}.json         fetch published off-chain JSON

Identities are base58 strings, hashes are hex. Errors are returned as ErrorResponse with
a status code derived from the registry error:

	404  not found (registry state, tree, transaction, event, document)
	409  already initialized, registry full
	403  unauthorized authority, collection authority mismatch
	400  malformed request, invalid tree parameters, invalid metadata
	422  failure inside the compression or metadata programs, failed transaction
	503  storage unavailable
*/
package api
