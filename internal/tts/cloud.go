package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/talktwin/internal/core"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const (
	providerCloud     = "google-cloud-tts"
	audioEncodingWAV  = "LINEAR16"
	defaultCloudRate  = 24000
	defaultCloudSpeed = 1.0
)

// cloudLanguages maps catalog locale ids to Cloud Text-to-Speech language
// codes. Canadian English has no voice of its own and uses the US one.
var cloudLanguages = map[string]string{
	"en":    "en-US",
	"en-us": "en-US",
	"en-uk": "en-GB",
	"en-au": "en-AU",
	"en-ca": "en-US",
}

// CloudConfig configures the Google Cloud Text-to-Speech fallback.
type CloudConfig struct {
	APIKey          string
	CredentialsFile string
	Endpoint        string
	SampleRate      int
	SpeakingRate    float64
}

// CloudSynthesizer speaks locale voices through Google Cloud Text-to-Speech.
// It is the degrading backend: a failed chunk becomes a gap, not an abort.
type CloudSynthesizer struct {
	service      *texttospeech.Service
	sampleRate   int
	speakingRate float64
}

// NewCloudSynthesizer authenticates with the API key, the service account
// file, or application default credentials, in that order. Extra options
// are appended last.
func NewCloudSynthesizer(ctx context.Context, cfg CloudConfig, extra ...option.ClientOption) (*CloudSynthesizer, error) {
	var opts []option.ClientOption

	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read cloud credentials: %w", err)
		}

		creds, err := google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cloud credentials: %w", err)
		}

		opts = append(opts, option.WithCredentials(creds))
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	opts = append(opts, extra...)

	service, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, WrapError(providerCloud, err)
	}

	synth := &CloudSynthesizer{
		service:      service,
		sampleRate:   cfg.SampleRate,
		speakingRate: cfg.SpeakingRate,
	}

	if synth.sampleRate <= 0 {
		synth.sampleRate = defaultCloudRate
	}

	if synth.speakingRate <= 0 {
		synth.speakingRate = defaultCloudSpeed
	}

	return synth, nil
}

// Synthesize implements core.Synthesizer. The service answers LINEAR16 with
// a RIFF header, so the decoded content is a complete WAV file.
func (c *CloudSynthesizer) Synthesize(ctx context.Context, text string, voice core.Voice) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	languageCode, ok := cloudLanguages[voice.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a cloud voice", ErrUnknownVoice, voice.ID)
	}

	request := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{LanguageCode: languageCode},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   audioEncodingWAV,
			SampleRateHertz: int64(c.sampleRate),
			SpeakingRate:    c.speakingRate,
		},
	}

	response, err := c.service.Text.Synthesize(request).Context(ctx).Do()
	if err != nil {
		return nil, cloudError(err)
	}

	audio, err := base64.StdEncoding.DecodeString(response.AudioContent)
	if err != nil {
		return nil, WrapError(providerCloud, fmt.Errorf("failed to decode audio content: %w", err))
	}

	if len(audio) == 0 {
		return nil, WrapError(providerCloud, ErrEmptyAudio)
	}

	if !looksLikeWAV(audio) {
		return nil, WrapError(providerCloud, ErrNotWAV)
	}

	return audio, nil
}

// Name implements core.Synthesizer.
func (c *CloudSynthesizer) Name() string {
	return providerCloud
}

// Degrades implements core.Synthesizer.
func (c *CloudSynthesizer) Degrades() bool {
	return true
}

func cloudError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   providerCloud,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	return WrapError(providerCloud, err)
}
