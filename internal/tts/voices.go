package tts

import (
	"fmt"

	"github.com/book-expert/talktwin/internal/core"
)

// DefaultVoiceID is preselected in the web form and the CLI.
const DefaultVoiceID = "p225"

// SpeakerVoices are the VCTK speakers of the multi-speaker model.
var SpeakerVoices = []core.Voice{
	{ID: "p225", Description: "Female - English", Backend: core.BackendSpeaker},
	{ID: "p227", Description: "Female - Northern English", Backend: core.BackendSpeaker},
	{ID: "p228", Description: "Female - Scottish", Backend: core.BackendSpeaker},
	{ID: "p230", Description: "Male - English", Backend: core.BackendSpeaker},
	{ID: "p236", Description: "Male - Scottish", Backend: core.BackendSpeaker},
}

// CloudVoices are the English locales served by the cloud fallback.
var CloudVoices = []core.Voice{
	{ID: "en", Description: "English (Default)", Backend: core.BackendCloud},
	{ID: "en-us", Description: "English (United States)", Backend: core.BackendCloud},
	{ID: "en-uk", Description: "English (United Kingdom)", Backend: core.BackendCloud},
	{ID: "en-au", Description: "English (Australia)", Backend: core.BackendCloud},
	{ID: "en-ca", Description: "English (Canada)", Backend: core.BackendCloud},
}

// Catalog is the fixed, ordered set of selectable voices.
type Catalog struct {
	voices []core.Voice
	byID   map[string]core.Voice
}

// NewCatalog builds a catalog keeping the given order. Later duplicates of
// an id are ignored.
func NewCatalog(voices ...core.Voice) *Catalog {
	catalog := &Catalog{
		voices: make([]core.Voice, 0, len(voices)),
		byID:   make(map[string]core.Voice, len(voices)),
	}

	for _, voice := range voices {
		if _, exists := catalog.byID[voice.ID]; exists {
			continue
		}

		catalog.voices = append(catalog.voices, voice)
		catalog.byID[voice.ID] = voice
	}

	return catalog
}

// CatalogFor returns the voices of the enabled backend kinds, speaker voices first.
func CatalogFor(kinds ...core.BackendKind) *Catalog {
	enabled := make(map[core.BackendKind]bool, len(kinds))
	for _, kind := range kinds {
		enabled[kind] = true
	}

	var voices []core.Voice

	for _, group := range [][]core.Voice{SpeakerVoices, CloudVoices} {
		for _, voice := range group {
			if enabled[voice.Backend] {
				voices = append(voices, voice)
			}
		}
	}

	return NewCatalog(voices...)
}

// Lookup returns the voice with the given id.
func (c *Catalog) Lookup(id string) (core.Voice, error) {
	voice, ok := c.byID[id]
	if !ok {
		return core.Voice{}, fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}

	return voice, nil
}

// Voices returns a copy of the catalog in display order.
func (c *Catalog) Voices() []core.Voice {
	return append([]core.Voice(nil), c.voices...)
}

// Len returns the number of voices.
func (c *Catalog) Len() int {
	return len(c.voices)
}

// Label renders a voice the way the selection lists show it.
func Label(voice core.Voice) string {
	return voice.ID + ": " + voice.Description
}
