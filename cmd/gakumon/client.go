package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/gakumon/internal/models"
)

func retrieveViaHTTP(serverURL string, req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	return postJSON[models.RetrieveResponse](serverURL+"/api/v1/retrieve", req, http.StatusOK)
}

func askViaHTTP(serverURL string, req *models.AskRequest) (*models.AskResponse, error) {
	return postJSON[models.AskResponse](serverURL+"/api/v1/ask", req, http.StatusOK)
}

// addViaHTTP posts one document. The server answers 201 for new content and 200 when it skipped it.
func addViaHTTP(serverURL string, in models.DocumentInput) (*models.AddResponse, error) {
	return postJSON[models.AddResponse](serverURL+"/api/v1/documents", in, http.StatusCreated, http.StatusOK)
}

func rebuildViaHTTP(serverURL string) (*models.RebuildResponse, error) {
	return postJSON[models.RebuildResponse](serverURL+"/api/v1/rebuild", nil, http.StatusOK)
}

func statusViaHTTP(serverURL string) (*models.StatusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse[models.StatusResponse](resp, http.StatusOK)
}

func postJSON[T any](url string, body any, ok ...int) (*T, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}
	resp, err := http.Post(url, "application/json", payload)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse[T](resp, ok...)
}

func decodeResponse[T any](resp *http.Response, ok ...int) (*T, error) {
	accepted := false
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// errorMessage extracts the "error" field of an API error body, falling back to the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(r)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(b))
}
