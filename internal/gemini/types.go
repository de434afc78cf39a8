// internal/gemini/types.go
package gemini

import "encoding/json"

// InlineData is a binary part (image or video) with its declared mime type.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// Part is one element of a content payload: text or inline binary.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Content groups parts under an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// Candidate is one generation candidate in a response envelope.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Prediction is the legacy prediction response shape some image models
// still return.
type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType,omitempty"`
}

// GenerateResponse is the generateContent response envelope. Both the
// candidate shape and the legacy predictions shape may appear; callers
// probe them in order.
type GenerateResponse struct {
	Candidates  []Candidate  `json:"candidates"`
	Predictions []Prediction `json:"predictions"`
	Error       *APIError    `json:"error,omitempty"`
}

// APIError is the upstream error object.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ModelInfo describes one entry of the models-list endpoint.
type ModelInfo struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// MediaBlob is the instances-style binary payload for predictLongRunning.
type MediaBlob struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

// VideoInstance is one instance of a video generation request.
type VideoInstance struct {
	Prompt string     `json:"prompt"`
	Image  *MediaBlob `json:"image,omitempty"`
	Video  *MediaBlob `json:"video,omitempty"`
}

// PredictRequest is the predictLongRunning request body.
type PredictRequest struct {
	Instances []VideoInstance `json:"instances"`
}

// Operation is a long-running job handle. Response stays raw: the upstream
// result layout drifts between model generations, so shape probing is left
// to the caller.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *APIError       `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}
