// Saturn-worker indexes and serves one workspace shard.
//
// A worker is normally spawned by the router, which passes the connect
// address and shard id on the command line and the auth token through
// the SATURN_WORKER_AUTH_TOKEN environment variable. Workers can also
// be started by hand on remote machines, typically with TLS flags:
//
//	saturn-worker --connect router.internal:7600 --shard-id 2 \
//	  --cache-dir /var/cache/saturn \
//	  --tls --tls-ca ca.pem --tls-cert worker.pem --tls-key worker-key.pem
//
// The token never appears in argv; process listings on shared machines
// must not reveal it.
package main

func main() {
	Execute()
}
