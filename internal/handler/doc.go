// Package handler implements the HTTP surface of the orchestrator.
//
// The surface is deliberately small: read-only monitoring endpoints
// (overview, branch detail, job detail, plain text report), a liveness
// check, and one admin-guarded trigger that starts a branch run. Errors
// are RFC 9457 Problem Details.
package handler
