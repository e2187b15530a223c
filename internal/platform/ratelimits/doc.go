// Package ratelimits discovers the request ceiling granted by the text
// completion provider. The provider reports an allowance such as
// "10 requests per 10s"; Client converts it into requests per second for the
// rate-limited task queue.
package ratelimits
