// Package notifications delivers recording events and finished captures to
// chat services.
//
// Two backends are available: ntfy (plain HTTP publish, file attachments via
// PUT) and Slack (chat.postMessage plus the external upload flow). NewService
// combines whichever are configured and degrades to a no-op when neither is.
// Callers depend only on the Service interface.
package notifications
