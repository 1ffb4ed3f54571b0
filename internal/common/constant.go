// Package common contains shared constants and sentinel errors used across
// gophbucket components.
package common

// AccessTokenHeaderName is the HTTP header carrying the caller's bearer token,
// both on inbound requests and on the outbound access check.
const AccessTokenHeaderName = "x-access-token"

// CloudUserPrefix is prepended to the hyphen-stripped public id to form the
// cloud identity name.
const CloudUserPrefix = "Z"
