// Package replication keeps the local store and the remote store in step.
//
// The Engine runs only on the elected leader. It has three flows:
//
//   - Pull: pages of remote records after the persisted pull cursor are
//     merged, each page and its cursor in one local transaction. Runs on
//     start, every PullInterval, and whenever the realtime channel
//     (re)connects.
//   - Realtime: remote change notifications are merged as they arrive.
//     They do not move the pull cursor; the next catch-up re-reads them as
//     no-op merges.
//   - Push: locally originated mutations after the push cursor are sent
//     in batches of PushBatchSize, on every local commit and every
//     PushInterval. The cursor advances only after the remote
//     acknowledges a batch.
//
// Conflicts resolve last-write-wins by (updated_at, revision) on both
// sides, so the order in which flows interleave never changes the result.
// Failures retry with exponential backoff until leadership ends and are
// reported through Status, never to local callers.
package replication
