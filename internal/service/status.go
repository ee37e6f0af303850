package service

import (
	"encoding/json"
	"time"
)

// BuildState classifies the outcome of a pipeline build iteration.
type BuildState int

const (
	BuildStateUnknown BuildState = iota
	BuildStateSuccess
	BuildStateInternalError
	BuildStateBuildFailed
	BuildStatePushFailed
)

func (s BuildState) String() string {
	switch s {
	case BuildStateSuccess:
		return "success"
	case BuildStateInternalError:
		return "internal_error"
	case BuildStateBuildFailed:
		return "build_failed"
	case BuildStatePushFailed:
		return "push_failed"
	default:
		return "unknown"
	}
}

func (s BuildState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BuildState) UnmarshalJSON(bs []byte) error {
	var str string
	if err := json.Unmarshal(bs, &str); err != nil {
		return err
	}

	switch str {
	case "success":
		*s = BuildStateSuccess
	case "internal_error":
		*s = BuildStateInternalError
	case "build_failed":
		*s = BuildStateBuildFailed
	case "push_failed":
		*s = BuildStatePushFailed
	default:
		*s = BuildStateUnknown
	}
	return nil
}

// Status is the last observed build outcome of a pipeline.
type Status struct {
	Pipeline  string     `json:"pipeline"`
	State     BuildState `json:"state"`
	Message   string     `json:"message,omitempty"`
	Revision  string     `json:"revision,omitempty"`
	LastBuilt time.Time  `json:"last_built,omitzero"`
}
