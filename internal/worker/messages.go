package worker

import "github.com/book-expert/events"

// NarrationRequested asks for the base narration of a PDF already stored in
// the object store.
type NarrationRequested struct {
	Header events.EventHeader `json:"header"`
	PDFKey string             `json:"pdf_key"`
	Name   string             `json:"name"`
	Voice  string             `json:"voice"`
}

// NarrationCompleted is the reply to a NarrationRequested. Error is set
// instead of AudioKey when the pass failed.
type NarrationCompleted struct {
	Header   events.EventHeader `json:"header"`
	AudioKey string             `json:"audio_key,omitempty"`
	Chunks   int                `json:"chunks"`
	Gaps     []int              `json:"gaps,omitempty"`
	Error    string             `json:"error,omitempty"`
}
