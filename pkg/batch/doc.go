// Package batch fetches many URLs in parallel on a bounded worker pool.
//
// Every URL in a batch is dispatched and the call returns only after all of
// them have finished (one barrier per batch, no streaming). Each URL goes
// through the single-URL fetcher, so retries and dispatch spacing apply per URL.
//
// Example usage:
//
//	f, _ := fetcher.New(fetcher.DefaultConfig())
//	b := batch.New(f, batch.Config{Workers: 4, Mode: batch.ContinueOnError})
//	pairs, err := b.GetAllWithURLs(ctx, urls)
//
// Modes:
//   - FailFast: any failed URL fails the batch with a *BatchError and no results
//   - ContinueOnError: failed URLs are logged and dropped; the error is always nil
//
// Bare results (GetAll, ExistsAll) follow completion order. Use the WithURLs
// variants when results must be matched back to their inputs; those also
// collapse duplicate input URLs.
package batch
