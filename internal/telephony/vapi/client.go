// Package vapi implements the telephony provider against the Vapi HTTP API.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emirpiksel/dialara/internal/config"
	"github.com/emirpiksel/dialara/internal/telephony"
	apperrors "github.com/emirpiksel/dialara/pkg/errors"
)

// Client talks to the Vapi call API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from provider configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type createCallRequest struct {
	AssistantID string            `json:"assistantId"`
	Customer    customerPayload   `json:"customer"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type customerPayload struct {
	Number string `json:"number"`
}

type callResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	EndedReason string `json:"endedReason"`
	Duration    int    `json:"durationSeconds"`
}

// PlaceCall creates an outbound call and returns the provider call id.
func (c *Client) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	metadata := map[string]string{
		"campaign_id":      req.CampaignID,
		"campaign_call_id": req.AttemptID,
		"contact_name":     req.ContactName,
		"contact_email":    req.ContactEmail,
	}
	if req.ScriptTemplate != "" {
		metadata["script_template"] = req.ScriptTemplate
	}
	for k, v := range req.CustomVars {
		metadata["var_"+k] = v
	}

	body, err := json.Marshal(createCallRequest{
		AssistantID: req.AgentID,
		Customer:    customerPayload{Number: req.PhoneNumber},
		Metadata:    metadata,
	})
	if err != nil {
		return telephony.PlaceCallResult{}, fmt.Errorf("vapi: marshal call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return telephony.PlaceCallResult{}, fmt.Errorf("vapi: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return telephony.PlaceCallResult{}, fmt.Errorf("vapi: place call: %w: %v", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return telephony.PlaceCallResult{}, fmt.Errorf("vapi: place call: %w: status %d: %s", apperrors.ErrProvider, resp.StatusCode, detail)
	}

	var created callResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return telephony.PlaceCallResult{}, fmt.Errorf("vapi: decode call response: %w", err)
	}

	return telephony.PlaceCallResult{ProviderCallID: created.ID}, nil
}

// CallStatus polls one call. The caller maps poll failures onto the
// ended/api_error outcome.
func (c *Client) CallStatus(ctx context.Context, providerCallID string) (telephony.StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/"+providerCallID, nil)
	if err != nil {
		return telephony.StatusResult{}, fmt.Errorf("vapi: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return telephony.StatusResult{}, fmt.Errorf("vapi: call status: %w: %v", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return telephony.StatusResult{}, fmt.Errorf("vapi: call status: %w: status %d", apperrors.ErrProvider, resp.StatusCode)
	}

	var call callResponse
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return telephony.StatusResult{}, fmt.Errorf("vapi: decode status response: %w", err)
	}

	return telephony.StatusResult{
		Ended:           call.Status == "ended",
		EndReason:       call.EndedReason,
		DurationSeconds: call.Duration,
	}, nil
}
