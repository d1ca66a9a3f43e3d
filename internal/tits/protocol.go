// Package tits implements a client for the T.I.T.S. overlay application's
// public websocket API: trigger discovery and trigger activation.
package tits

import (
	"encoding/json"
	"fmt"
)

// API constants required by the overlay application. The field values must
// match the wire protocol exactly.
const (
	apiName    = "TITSPublicApi"
	apiVersion = "1.0"

	messageTypeTriggerList     = "TITSTriggerListRequest"
	messageTypeTriggerActivate = "TITSTriggerActivateRequest"
)

// TriggerListRequest asks the overlay application for every configured trigger.
type TriggerListRequest struct {
	APIName     string `json:"apiName"`
	APIVersion  string `json:"apiVersion"`
	RequestID   string `json:"requestID"`
	MessageType string `json:"messageType"`
}

// NewTriggerListRequest builds a trigger-list request carrying the given
// alias as its correlation token.
func NewTriggerListRequest(alias string) TriggerListRequest {
	return TriggerListRequest{
		APIName:     apiName,
		APIVersion:  apiVersion,
		RequestID:   alias,
		MessageType: messageTypeTriggerList,
	}
}

// TriggerActivateRequest fires a single trigger by its overlay-assigned ID.
type TriggerActivateRequest struct {
	APIName     string              `json:"apiName"`
	APIVersion  string              `json:"apiVersion"`
	RequestID   string              `json:"requestID"`
	MessageType string              `json:"messageType"`
	Data        TriggerActivateData `json:"data"`
}

// TriggerActivateData carries the trigger identifier for an activate request.
type TriggerActivateData struct {
	TriggerID string `json:"triggerID"`
}

// NewTriggerActivateRequest builds an activate request for the given trigger ID.
func NewTriggerActivateRequest(alias, triggerID string) TriggerActivateRequest {
	return TriggerActivateRequest{
		APIName:     apiName,
		APIVersion:  apiVersion,
		RequestID:   alias,
		MessageType: messageTypeTriggerActivate,
		Data:        TriggerActivateData{TriggerID: triggerID},
	}
}

// TriggerDescriptor is one trigger as reported by the overlay application.
type TriggerDescriptor struct {
	Name string `json:"name"`
	ID   string `json:"ID"`
}

// triggerListResponse is the consumed subset of the overlay's trigger-list
// response. Fields other than data.triggers are ignored.
type triggerListResponse struct {
	Data struct {
		Triggers []TriggerDescriptor `json:"triggers"`
	} `json:"data"`
}

// ParseTriggerList extracts the trigger descriptors from a raw trigger-list
// response payload.
//
// Postcondition: Returns the descriptors in response order, or a non-nil
// error if the payload is not valid JSON of the expected shape.
func ParseTriggerList(payload []byte) ([]TriggerDescriptor, error) {
	var resp triggerListResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("parsing trigger list response: %w", err)
	}
	return resp.Data.Triggers, nil
}
