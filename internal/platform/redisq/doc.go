// Package redisq provides a Redis backend for the durable job queue.
//
// Each queue keeps its jobs as JSON in a hash and tracks state with one key
// per status: a list of waiting IDs (claimed with LPOP, so a job is handed to
// exactly one worker), a sorted set of delayed IDs scored by run time, and sets
// for active, completed and failed IDs. A sorted set scored by an insertion
// sequence preserves listing order.
package redisq
