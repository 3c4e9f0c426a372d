// Package peer exposes another media-server instance as an external
// metadata source.
//
// A peer item is matched against the local backend by title, year, type
// and the peer's GUIDs. Items the local backend lacks are rendered from the
// peer's own metadata and flagged unavailable, since the media lives on the
// peer. Children and related hubs are taken from the peer as well.
//
// Peer ids use the item type as directory and the peer's rating key as id,
// e.g. "movie:42". Only the rating key is needed to fetch an item.
package peer
