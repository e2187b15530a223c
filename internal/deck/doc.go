// Package deck persists generated entries as an Anki-importable CSV file.
//
// The file has no header and six columns per row: source text, source
// context, target text, target context, and the two audio references written
// as [sound:<file>]. Every field is quoted; embedded quotes are doubled.
// Records are only ever appended, so a crash leaves at worst a duplicated
// record, which the reorder step tolerates.
package deck
