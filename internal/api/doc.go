// Package api implements the authenticated HTTP client for the hermes
// download API.
//
// Every outbound call goes through [Client.Request], which attaches the
// bearer credential from the [auth.Store], transparently refreshes an
// expired access token (single-flight, so concurrent 401s share one refresh),
// and retries the original call exactly once. All other failures are
// surfaced as a typed [*Error] carrying kind, status, and message so callers
// can choose their own retry policy.
//
// The wire types mirror the hermes API response models: a
// [DownloadStatus] snapshot per job and a [DownloadQueue] collection
// snapshot with aggregate counts.
package api
