package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest marks a request rejected before reaching the engine.
var ErrInvalidRequest = errors.New("invalid request")

// RetrieveRequest asks for the top-k passages for a query. K <= 0 means the configured default.
type RetrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate rejects blank queries and caps K at maxK. A zero K is left for the engine to default.
func (r *RetrieveRequest) Validate(maxK int) error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if r.K < 0 {
		r.K = 0
	}
	if maxK > 0 && r.K > maxK {
		r.K = maxK
	}
	return nil
}

// AskRequest asks for a generated answer grounded on the top-k passages.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// Validate rejects blank questions and caps K at maxK.
func (r *AskRequest) Validate(maxK int) error {
	rr := RetrieveRequest{Query: r.Question, K: r.K}
	if err := rr.Validate(maxK); err != nil {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidRequest)
	}
	r.K = rr.K
	return nil
}
