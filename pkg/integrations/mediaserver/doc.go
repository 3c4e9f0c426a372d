// Package mediaserver provides a client for the media-server item protocol.
//
// The same protocol is spoken by the authoritative backend and by the
// discovery catalog, so one [Client] type implements [metadata.Backend] for
// both. Responses are JSON documents wrapped in a MediaContainer:
//
//	{"MediaContainer": {"size": 1, "Metadata": [{"ratingKey": "42", ...}]}}
//
// Endpoints used:
//
//   - GET /library/metadata/matches?title=&year=&type=&guid=  (FindMatch)
//   - GET /library/all?guid=<g1>,<g2>                          (GetByGUID)
//   - GET /library/metadata/<ratingKey>                        (Metadata)
//   - GET /library/metadata/<ratingKey>/children               (GetChildren)
//   - GET /library/metadata/<ratingKey>/related                (GetRelatedHubs)
//
// The access token travels in the X-Plex-Token header. All requests go
// through the shared [integrations.Client], and therefore through the
// request executor of the server's host.
//
// [metadata.Backend]: github.com/matzehuels/metagate/pkg/metadata.Backend
// [integrations.Client]: github.com/matzehuels/metagate/pkg/integrations.Client
package mediaserver
