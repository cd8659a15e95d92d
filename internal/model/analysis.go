package model

import "time"

// AIAnalysis is the persisted outcome of the post-call analysis pipeline.
// At most one row exists per call SID; re-running analysis is a no-op once
// a row is present.
type AIAnalysis struct {
	ID            string    `json:"id"`
	CallSID       string    `json:"call_sid"`
	Transcription string    `json:"transcription"`
	Summary       string    `json:"summary"`
	Sentiment     Sentiment `json:"sentiment"`
	Tags          []Tag     `json:"tags"`
	Fallback      bool      `json:"fallback"`
	CreatedAt     time.Time `json:"created_at"`
}

// PrimaryTag returns the first tag produced by the classifier, or empty.
func (a *AIAnalysis) PrimaryTag() (Tag, bool) {
	if len(a.Tags) == 0 {
		return "", false
	}
	return a.Tags[0], true
}
