package model

import "github.com/rotisserie/eris"

// Tag classifies the outcome of a call. The vocabulary is closed: the CRM
// UI and the analysis classifier must agree on these exact values.
type Tag string

const (
	TagScheduled         Tag = "Scheduled"
	TagRescheduled       Tag = "Rescheduled"
	TagCanceled          Tag = "Canceled"
	TagCallBackRequested Tag = "Call-back-requested"
	TagSendInfo          Tag = "Send-info"
	TagNoSlot            Tag = "No-slot"
	TagDidNotSchedule    Tag = "Did-not-schedule"
	TagWrongNumber       Tag = "Wrong-number"
)

// AllTags lists the vocabulary in its canonical order. The classifier's
// "first tag wins" rule depends on this ordering.
var AllTags = []Tag{
	TagScheduled,
	TagRescheduled,
	TagCanceled,
	TagCallBackRequested,
	TagSendInfo,
	TagNoSlot,
	TagDidNotSchedule,
	TagWrongNumber,
}

// ErrInvalidTag is returned when a tag value is outside the vocabulary.
var ErrInvalidTag = eris.New("model: tag not in vocabulary")

// ParseTag validates a raw tag value against the closed vocabulary.
func ParseTag(raw string) (Tag, error) {
	for _, t := range AllTags {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidTag, "%q", raw)
}

// ValidTag reports whether raw is in the vocabulary.
func ValidTag(raw string) bool {
	_, err := ParseTag(raw)
	return err == nil
}

// Sentiment is the caller's overall disposition as judged by analysis.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// ParseSentiment normalizes a raw sentiment value, defaulting to Neutral.
func ParseSentiment(raw string) Sentiment {
	switch Sentiment(raw) {
	case SentimentPositive, SentimentNegative:
		return Sentiment(raw)
	default:
		return SentimentNeutral
	}
}
