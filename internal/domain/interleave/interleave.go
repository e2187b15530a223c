// Package interleave reorders study material so that new items are spread
// evenly across study sessions.
//
// Generated decks hold every usage variant of a word next to each other. When
// such a deck is imported into a spaced-repetition tool, all variants of one
// word get scheduled together and a study day introduces only one or two new
// words. Reorder fixes that by introducing a bounded number of new keys per
// virtual day and revisiting every key introduced so far.
package interleave

// Params controls how Reorder distributes entries across days.
type Params struct {
	// NewItemsPerGroup is how many new keys are introduced per day
	NewItemsPerGroup int

	// EntriesPerGroupItem is how many entries of each introduced key are emitted per day
	EntriesPerGroupItem int
}

// DefaultParams returns Params with reasonable defaults
func DefaultParams() Params {
	return Params{
		NewItemsPerGroup:    5,
		EntriesPerGroupItem: 1,
	}
}

// Reorder groups entries by key and emits them day by day.
//
// Keys are ordered by their first occurrence in entries. On day d the keys at
// positions [d*newItemsPerGroup, (d+1)*newItemsPerGroup) become introduced and
// stay introduced for every later day. Each day visits the introduced keys in
// first-occurrence order and emits up to entriesPerGroupItem entries of each
// that have not been emitted yet. Entries sharing a key keep their relative
// order. The output is fully deterministic.
//
// Parameters:
//   - entries: The items to reorder; the slice is not modified
//   - newItemsPerGroup: How many new keys to introduce per day; values below 1 are treated as 1
//   - entriesPerGroupItem: How many entries per introduced key to emit per day
//   - key: Extracts the grouping key of an entry
//
// Returns:
//   - A new slice with the reordered entries. Once every key is introduced,
//     a day that emits nothing ends the reordering, so a non-positive
//     entriesPerGroupItem yields whatever was emitted up to that point.
func Reorder[T any, K comparable](
	entries []T,
	newItemsPerGroup int,
	entriesPerGroupItem int,
	key func(T) K,
) []T {
	if newItemsPerGroup < 1 {
		newItemsPerGroup = 1
	}

	groups := make(map[K][]T)
	var keyOrder []K
	for _, entry := range entries {
		k := key(entry)
		if _, ok := groups[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		groups[k] = append(groups[k], entry)
	}

	output := make([]T, 0, len(entries))
	used := make(map[K]int, len(keyOrder))
	introduced := 0

	for day := 0; len(output) < len(entries); day++ {
		end := (day + 1) * newItemsPerGroup
		if end > len(keyOrder) {
			end = len(keyOrder)
		}
		if end > introduced {
			introduced = end
		}

		emitted := 0
		for _, k := range keyOrder[:introduced] {
			group := groups[k]
			start := used[k]
			take := min(entriesPerGroupItem, len(group)-start)
			if take <= 0 {
				continue
			}
			output = append(output, group[start:start+take]...)
			used[k] = start + take
			emitted += take
		}

		if introduced == len(keyOrder) && emitted == 0 {
			break
		}
	}

	return output
}

// ReorderWith is Reorder with the distribution taken from params.
func ReorderWith[T any, K comparable](entries []T, params Params, key func(T) K) []T {
	return Reorder(entries, params.NewItemsPerGroup, params.EntriesPerGroupItem, key)
}
