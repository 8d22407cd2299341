// Package webhook implements the signed message ingestion endpoint.
//
// Senders sign the exact request body with HMAC-SHA256 using a pre-shared
// secret and send the lowercase hex digest in the X-Signature header (the
// header name is configurable, and a GitHub-style "sha256=" prefix is
// accepted).
//
// # Request Flow
//
//  1. HTTP POST arrives; the raw body is read (reject with 413 if too large)
//  2. HMAC-SHA256 computed over the raw body
//  3. Constant-time comparison with the header (reject with 401 if missing or mismatched)
//  4. Body decoded into a message (400 on malformed JSON, 422 on invalid fields)
//  5. Idempotent insert keyed by message_id
//  6. 200 {"status":"ok"} for both new and duplicate messages
//
// # Error Responses
//
//   - 401 Unauthorized: invalid or missing signature (no details)
//   - 400 Bad Request: body is not a JSON object
//   - 422 Unprocessable Entity: required field missing, empty, or text too long
//   - 413 Payload Too Large: body exceeds MaxBodySize
//   - 500 Internal Server Error: storage failure
//
// Each request records exactly one webhook outcome (created, duplicate or
// invalid_signature) except validation failures and storage faults, which
// are protocol or infrastructure errors rather than webhook outcomes.
//
// # Example Usage
//
//	h := webhook.New(webhook.Config{
//		Secret: os.Getenv("WEBHOOK_SECRET"),
//	}, messageStore, registry, logger)
//	router.Post("/webhook", h.ServeHTTP)
package webhook
