// Package events lets pipeline stages announce what they produced without
// knowing who acts on it. The translation stage emits AudioRequested after a
// record reaches the deck; the audio job handler subscribes to it and turns
// the event into durable audio jobs.
package events
