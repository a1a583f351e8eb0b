// Package source provides event sources and due date lookups backed by
// exported board files.
//
// A board file is either a JSON array of upstream actions or a full board
// export object:
//
//	{"actions": [...], "cards": [...], "lists": [...]}
//
// An export also supplies the card states used to seed a new board and the
// due dates of sprint marker cards. Files ending in .zst or .lz4 are
// decompressed on read.
package source
