// Package fetcher harvests a single work item through a browser page.
//
// One Fetch opens an isolated page bound to the saved auth context,
// navigates under a timeout, waits for the page to settle, captures the
// rendered HTML and hands it to the artifact store. The page is closed on
// every path. Failures come back as typed per-item errors and are never
// retried here.
package fetcher
