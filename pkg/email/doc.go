// Package email defines the send-provider capability consumed by the
// delivery engines: a single Sender interface taking a provider-neutral
// Message and returning the provider message ID.
//
// Two implementations ship with the package:
//
//   - NewPostmarkSender: production delivery through Postmark's
//     transactional API.
//   - NewDevSender: local development; writes messages to disk as
//     HTML + JSON instead of sending.
//
// Provider selection and credentials are resolved by the caller at
// construction time; nothing in the engines knows which provider is
// behind the interface.
package email
