// Package client contains the operator-side API contract for gophbucket.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) covering the
//     server's status probe, identity provisioning, identity details and
//     upload authorizations.
//  2. A concrete HTTP implementation (see HTTPClient) that attaches the
//     caller's access token and maps HTTP statuses to sentinel errors.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, common.ErrorUnauthorized, common.ErrorNotFound.
//
// All operations accept context.Context and honor cancellation and timeouts.
package client
