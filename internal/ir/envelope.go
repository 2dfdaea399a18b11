package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks an entry-point input that is missing a required field.
var ErrMalformed = errors.New("malformed input")

// InitiateRequest is the caller-facing input of the request entry point.
//
// SubjectID is the caller identity after authorization has been resolved.
// RequestedSubject is the subject the caller asked to actuate; when set it
// must equal SubjectID.
type InitiateRequest struct {
	SubjectID        string `json:"subject_id"`
	RequestedSubject string `json:"requested_subject,omitempty"`
}

// Validate enforces the fields required to initiate a request.
func (r InitiateRequest) Validate() error {
	if strings.TrimSpace(r.SubjectID) == "" {
		return fmt.Errorf("%w: missing subject_id", ErrMalformed)
	}
	if r.RequestedSubject != "" && r.RequestedSubject != r.SubjectID {
		return fmt.Errorf("%w: requested subject %q does not match caller %q",
			ErrMalformed, r.RequestedSubject, r.SubjectID)
	}
	return nil
}

// OutcomeEnvelope is the asynchronous input of the reconcile entry point.
//
// Topic is the transport address the update arrived on. SubjectID, when
// set, takes precedence over the subject embedded in Topic. HasResponse is
// false when the update did not carry a response key at all; Outcome is nil
// when the response key was present but null (the follow-up clearing write).
type OutcomeEnvelope struct {
	Topic       string   `json:"topic,omitempty"`
	SubjectID   string   `json:"subject_id,omitempty"`
	HasResponse bool     `json:"has_response"`
	Outcome     *Outcome `json:"outcome,omitempty"`
}

// Subject resolves the addressed subject from the envelope.
func (e OutcomeEnvelope) Subject() (string, error) {
	if id := strings.TrimSpace(e.SubjectID); id != "" {
		return id, nil
	}
	return SubjectFromTopic(e.Topic)
}

// Empty reports whether the envelope carries no outcome to reconcile.
func (e OutcomeEnvelope) Empty() bool {
	return !e.HasResponse || e.Outcome == nil
}

// Validate enforces the outcome fields required to reconcile.
// Callers check Empty first; an empty envelope is valid and ignored.
func (e OutcomeEnvelope) Validate() error {
	if e.Outcome == nil {
		return nil
	}
	if strings.TrimSpace(e.Outcome.RequestID) == "" {
		return fmt.Errorf("%w: missing response.request_id", ErrMalformed)
	}
	if e.Outcome.Result == "" {
		return fmt.Errorf("%w: missing response.result", ErrMalformed)
	}
	if !e.Outcome.Result.Valid() {
		return fmt.Errorf("%w: unknown response.result %q", ErrMalformed, e.Outcome.Result)
	}
	return nil
}

// SubjectFromTopic extracts the subject id from a shadow topic of the form
// "$aws/things/<subject>/shadow/update/accepted" (third path element).
func SubjectFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return "", fmt.Errorf("%w: no subject in topic %q", ErrMalformed, topic)
	}
	return parts[2], nil
}

// ShadowAcceptedTopic returns the topic a subject's accepted shadow updates arrive on.
func ShadowAcceptedTopic(subjectID string) string {
	return "$aws/things/" + subjectID + "/shadow/update/accepted"
}
