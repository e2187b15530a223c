// Package domain contains the core entities of the deck generator: the
// flashcard entries produced for each source word, the records that group
// them, and the content-addressed naming of their audio. It is independent of
// any specific infrastructure or delivery mechanism.
package domain
