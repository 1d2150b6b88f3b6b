// Package api contains the HTTP client for the perch social-publishing API.
//
// # Overview
//
// The package provides:
//  1. A Client holding the base URL, the HTTP transport, and the cookie
//     jar. Unauthenticated operations (Login, FetchPosts) live here.
//  2. A Session, created by Client.Login, which owns the authenticated
//     cookie state and exposes post CRUD: CreatePost, EditPost,
//     DeletePost, SharePost, and Logout.
//  3. The attachment uploader, which drives the reserve → upload →
//     confirm/poll protocol for every pending attachment on a post before
//     the post body is sent.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors in internal/common that
// callers can match with errors.Is: ErrUnauthorized, ErrSaltDecode,
// ErrNetwork, ErrProtocol, ErrSessionClosed. Attachment failures carry
// their index and filename in *AttachmentError; non-2xx responses surface
// as *StatusError.
//
// # Concurrency & Contexts
//
// A Session may issue requests concurrently; only cookie-jar access is
// serialized. All operations accept context.Context and honor
// cancellation and timeouts. Cancelling a post operation stops local
// waiting only — reservations already made on the server persist, so a
// cancelled create or edit must be treated as indeterminate.
package api
