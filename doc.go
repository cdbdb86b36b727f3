// Package stakewallet and its sub-packages implement a backend service for Cardano stake wallets.
/*
stakewallet keeps users and their wallets in a database and serves each wallet together with the live state of its
stake account (active flag, controlled amount and rewards) as reported by a Blockfrost-compatible indexer.

Architecture

The wallet service (package wallet) exposes an HTTP RESTful API. Records are kept through a database product agnostic
interface (package lib/store) with implementations for SQLite, PostgreSQL and MongoDB selected by configuration
(package lib/store/db). Account lookups go through the indexer layer (package lib/block), which makes a single bounded
request per read and classifies any failure as an upstream or a parse error. A wallet read never falls back to cached
or default amounts: if the lookup fails, the request fails with 502.

When a message broker is configured (package lib/msg), the service publishes an event every time users or wallets
are created or deleted so other services can follow the stake keys being tracked.

The service can be monitored via a Prometheus API by setting the flag "-m" at startup.

Wallet

The wallet service can be started running cmd/wallet. Configuration is read from defaults, then an optional JSON file
(flag "-c", see cmd/conf.json) and then environment variables prefixed with SW_; a .env file is loaded first if present.
The "migrate" subcommand creates the database schema and "events" logs the wallet events of a network.

	POST   /users                     create a user
	DELETE /users/{id}                delete a user, its wallets and their addresses
	GET    /users/{id}/wallets        wallet records of a user
	POST   /wallets                   register a wallet {"user_id", "stake_key", "wallet_type"}
	GET    /wallets/{id}              wallet with the live state of its stake account
	GET    /wallets/stake/{stakeKey}  same, by stake key
	POST   /wallets/{id}/addresses    attach a payment address {"address"}
	GET    /wallets/{id}/addresses    payment addresses of a wallet
	GET    /health                    liveness

Errors are replied as {"error": "..."} with status 400 for invalid requests, 404 for unknown records, 422 when a
referenced user or wallet does not exist, 502 when the indexer fails and 500 for storage errors.
*/
package stakewallet
