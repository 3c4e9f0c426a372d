package server

import (
	"encoding/json"
	"net/http"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/filter"
	"github.com/matzehuels/metagate/pkg/metadata"
)

// Response is the JSON envelope of every metadata response.
type Response struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

type MediaContainer struct {
	Size       int              `json:"size"`
	Identifier string           `json:"identifier,omitempty"`
	Metadata   []*metadata.Item `json:"Metadata,omitempty"`
	Hub        []*metadata.Hub  `json:"Hub,omitempty"`
}

// Extension points run on outgoing responses.
var (
	MetadataPoint    = filter.NewPoint[*Response]("metadata")
	ChildrenPoint    = filter.NewPoint[*Response]("children")
	RelatedHubsPoint = filter.NewPoint[*Response]("relatedHubs")
)

// Points returns the names of all extension points.
func Points() []string {
	return []string{MetadataPoint.Name(), ChildrenPoint.Name(), RelatedHubsPoint.Name()}
}

// Filter values passed to every response filter.
const (
	ValueRequestID = "requestId"
	ValueSource    = "source"
	ValueKey       = "key"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusOf(err)
	code := errors.GetCode(err)
	msg := errors.UserMessage(err)
	switch {
	case errors.IsRateLimited(err):
		code, msg = errors.ErrCodeRateLimited, "upstream rate limit exceeded"
	case status >= http.StatusInternalServerError:
		if code == "" {
			code = errors.ErrCodeInternal
		}
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "err", err)
		if _, ok := errors.AsUpstream(err); ok {
			code, msg = errors.ErrCodeUpstream, "upstream request failed"
		} else if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	s.writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: msg}})
}
