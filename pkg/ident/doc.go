// Package ident implements the identifier grammar shared by every metadata
// source behind the gateway.
//
// # Overview
//
// Items from unrelated backends share one address space. An [Identifier]
// addresses any item globally; a [Partial] addresses an item inside a source
// whose slug is already known from context.
//
// Partial identifiers:
//
//	<id>
//	<directory>:<id>
//
// Full identifiers, colon form:
//
//	<source>:<id>
//	<source>:<directory>:<id>
//
// Full identifiers, URL form:
//
//	<source>://<id>[?relativePath]
//	<source>://<directory>/<id>[relativePath]
//
// An identifier without a source is a raw backend id and is emitted verbatim.
//
// # Encoding
//
// Source and directory are always percent-encoded on output and decoded on
// input. The id is encoded only in URL form; in colon form it passes through
// raw, so ids used in colon form must not contain ':' unless pre-encoded.
// Encoding follows the encodeURIComponent rules so identifiers already handed
// to clients stay byte-stable.
//
// # Round trip
//
// For every value produced by [Identifier.String], [Parse] returns an equal
// value; the same holds for [Partial.String] and [ParsePartial]:
//
//	p := ident.Partial{Directory: "film", ID: "amelie"}
//	p.String()                        // "film:amelie"
//	ident.ParsePartial("film:amelie") // {Directory: "film", ID: "amelie"}
//
//	id := ident.Identifier{IsURL: true, Source: "ext", Directory: "film", ID: "amelie", RelativePath: "/similar"}
//	id.String() // "ext://film/amelie/similar"
//
// Malformed input yields an error carrying [errors.ErrCodeInvalidIdentifier];
// callers decide whether that is a client error.
package ident
