package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/c360/zipstage/errors"
)

// QueryEnvelope is the JSON form of a query and, in replies, its answer.
type QueryEnvelope struct {
	Type     QueryType       `json:"type"`
	Endpoint string          `json:"endpoint"`
	Output   bool            `json:"output,omitempty"`
	Handled  bool            `json:"handled"`
	Query    json.RawMessage `json:"query,omitempty"`
	Error    string          `json:"error,omitempty"`
	// ReplyTo names the subject the answer is published on.
	ReplyTo string `json:"reply_to,omitempty"`
}

// NewQuery allocates an empty query of type t.
func NewQuery(t QueryType) (Query, error) {
	switch t {
	case QueryLatency:
		return &LatencyQuery{}, nil
	case QueryScheduling:
		return &SchedulingQuery{}, nil
	case QueryAcceptCaps:
		return &AcceptCapsQuery{}, nil
	case QueryCaps:
		return &CapsQuery{}, nil
	case QuerySeeking:
		return &SeekingQuery{}, nil
	case QueryPosition:
		return &PositionQuery{}, nil
	case QueryDuration:
		return &DurationQuery{}, nil
	case QueryCustom:
		return &CustomQuery{}, nil
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: query type %q", errors.ErrInvalidData, t),
		"protocol", "NewQuery", "type lookup")
}

// DecodeQuery parses the body of a QueryEnvelope into its concrete query.
func (e *QueryEnvelope) DecodeQuery() (Query, error) {
	q, err := NewQuery(e.Type)
	if err != nil {
		return nil, err
	}
	if len(e.Query) > 0 {
		if err := json.Unmarshal(e.Query, q); err != nil {
			return nil, errors.WrapInvalid(err, "protocol", "DecodeQuery", "json unmarshal")
		}
	}
	return q, nil
}

// EncodeQuery stores q as the envelope body.
func (e *QueryEnvelope) EncodeQuery(q Query) error {
	body, err := json.Marshal(q)
	if err != nil {
		return errors.WrapInvalid(err, "protocol", "EncodeQuery", "json marshal")
	}
	e.Type = q.Type()
	e.Query = body
	return nil
}

// EventEnvelope is the JSON form of an event on a control subject.
type EventEnvelope struct {
	Endpoint string `json:"endpoint"`
	Output   bool   `json:"output,omitempty"`
	Event    Event  `json:"event"`
}
