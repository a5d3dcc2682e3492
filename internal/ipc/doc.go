// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// The request and response types here are the wire protocol. The server
// converts daemon status and settings models into them; add new endpoints
// alongside the existing ones so older CLI builds keep working.
package ipc
