// Package tts provides the speech backends of the narration pipeline: the
// multi-speaker synthesis service client, the local Coqui command line, the
// Google Cloud fallback and the voice conversion service, together with the
// fixed voice catalog that routes each voice to its backend.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiConvertVoice   = "/v1/convert/voice"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Multipart field names of the conversion endpoint.
const (
	formFieldSource = "source_wav"
	formFieldTarget = "target_wav"
)

// Default values.
const (
	defaultTemperature = 0.75
	defaultLanguage    = "en"
	maxErrorBodyBytes  = 4096
)

const providerService = "tts-service"

// HTTPClient represents a client for the standalone speech HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// Request defines the JSON payload of a speech generation request.
type Request struct {
	// Text contains the input text to convert to speech.
	Text string `json:"text"`

	// Speaker selects one voice of a multi-speaker model, e.g. "p225".
	Speaker string `json:"speaker,omitempty"`

	// Language specifies the target language code. Defaults to "en".
	Language string `json:"language"`

	// Temperature controls randomness in speech generation.
	Temperature float64 `json:"temperature"`
}

// ErrorResponse represents a structured error response from the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates and configures an HTTP client for the speech service.
// The baseURL should include the protocol and port (e.g., "http://localhost:8000").
// The timeout applies to every request made by this client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the service address the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// GenerateSpeech sends a generation request and returns the WAV audio.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	return c.doAudio(httpReq)
}

// ConvertVoice uploads the source speech and the target voice sample and
// returns the source speech re-voiced as the target speaker.
func (c *HTTPClient) ConvertVoice(ctx context.Context, source, target []byte) ([]byte, error) {
	if len(source) == 0 {
		return nil, ErrSourceAudioEmpty
	}

	if len(target) == 0 {
		return nil, ErrVoiceSampleEmpty
	}

	var body bytes.Buffer

	form := multipart.NewWriter(&body)

	err := writeFormFile(form, formFieldSource, "source.wav", source)
	if err == nil {
		err = writeFormFile(form, formFieldTarget, "target.wav", target)
	}

	if err == nil {
		err = form.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build conversion form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiConvertVoice, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, form.FormDataContentType())
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	return c.doAudio(httpReq)
}

// HealthCheck verifies that the speech service is running. Run it before
// a long pass so an unavailable service fails fast.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", ErrServiceUnavailable, resp.Status)
	}

	return nil
}

func (c *HTTPClient) doAudio(httpReq *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !isWAVContentType(contentType) {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedContentType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body so diagnostics are never lost.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	apiErr := &APIError{
		Provider:   providerService,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var errorResp ErrorResponse
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Detail != "" {
		apiErr.Message = errorResp.Detail
		apiErr.Code = errorResp.ErrorCode
	}

	return apiErr
}

func writeFormFile(form *multipart.Writer, field, filename string, data []byte) error {
	part, err := form.CreateFormFile(field, filename)
	if err != nil {
		return err
	}

	_, err = part.Write(data)

	return err
}

func isWAVContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch mediaType {
	case contentTypeWAV, "audio/x-wav", "audio/wave":
		return true
	default:
		return false
	}
}
