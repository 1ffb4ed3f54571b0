// Package cli provides the interactive gophbucket operator client.
//
// It wires configuration, the HTTP API client and an interactive REPL.
// Typical flow: enter an access token, provision the caller's identity, then
// request upload authorizations for objects in the caller's bucket. A
// background watcher keeps the prompt's online/offline marker current.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
