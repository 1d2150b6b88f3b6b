// Package common defines shared constants and sentinel errors used across
// the perch client layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Auth errors.
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSessionClosed = errors.New("session is closed")

	// Salt decoding errors (hard failure, never retried).
	ErrSaltDecode = errors.New("salt is not valid in any supported encoding")

	// Transport and protocol errors.
	ErrNetwork  = errors.New("network error")
	ErrProtocol = errors.New("unexpected server response")

	// Post validation errors.
	ErrEmptyPost         = errors.New("post is empty (no headline, attachments, or markdown)")
	ErrFailedAttachment  = errors.New("post contains a failed attachment")
	ErrPendingAttachment = errors.New("attachment is still pending")
)
