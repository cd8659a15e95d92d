// Package twiml builds the XML voice documents the telephony provider
// executes against an inbound call.
package twiml

import (
	"encoding/xml"

	"github.com/rotisserie/eris"
)

// Response is the root voice document. Verbs execute in field order:
// the Say after a Dial only plays when the bridged leg ends without a
// redirect.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Dial    *Dial    `xml:"Dial,omitempty"`
	Say     []Say    `xml:"Say,omitempty"`
	Hangup  *Hangup  `xml:"Hangup,omitempty"`
}

// Say speaks a message to the caller.
type Say struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

// Dial bridges the caller to a destination number and records the leg.
type Dial struct {
	CallerID                      string  `xml:"callerId,attr,omitempty"`
	Action                        string  `xml:"action,attr,omitempty"`
	Method                        string  `xml:"method,attr,omitempty"`
	Timeout                       int     `xml:"timeout,attr,omitempty"`
	Record                        string  `xml:"record,attr,omitempty"`
	RecordingStatusCallback       string  `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusCallbackMethod string  `xml:"recordingStatusCallbackMethod,attr,omitempty"`
	RecordingStatusCallbackEvent  string  `xml:"recordingStatusCallbackEvent,attr,omitempty"`
	Number                        *Number `xml:"Number,omitempty"`
}

// Number is the dialed destination with per-leg status callbacks.
type Number struct {
	StatusCallback       string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent  string `xml:"statusCallbackEvent,attr,omitempty"`
	StatusCallbackMethod string `xml:"statusCallbackMethod,attr,omitempty"`
	Text                 string `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct{}

// DialOptions configures a bridged-and-recorded call document.
type DialOptions struct {
	DestinationNumber    string
	CallerID             string
	ActionURL            string
	StatusCallbackURL    string
	RecordingCallbackURL string
	// DroppedMessage plays when the bridged leg ends without a redirect.
	DroppedMessage string
	Voice          string
	Language       string
}

// NewDial builds the document for a resolved route: bridge to the
// destination, record from answer, and report lifecycle and recording
// events to the given callback URLs.
func NewDial(opts DialOptions) *Response {
	resp := &Response{
		Dial: &Dial{
			CallerID:                      opts.CallerID,
			Action:                        opts.ActionURL,
			Method:                        "POST",
			Timeout:                       30,
			Record:                        "record-from-answer",
			RecordingStatusCallback:       opts.RecordingCallbackURL,
			RecordingStatusCallbackMethod: "POST",
			RecordingStatusCallbackEvent:  "completed",
			Number: &Number{
				StatusCallback:       opts.StatusCallbackURL,
				StatusCallbackEvent:  "initiated ringing answered completed",
				StatusCallbackMethod: "POST",
				Text:                 opts.DestinationNumber,
			},
		},
	}
	if opts.DroppedMessage != "" {
		resp.Say = []Say{{
			Voice:    opts.Voice,
			Language: opts.Language,
			Text:     opts.DroppedMessage,
		}}
	}
	return resp
}

// NewSayHangup builds a spoken message followed by hangup, used for the
// no-route decline and the internal-error apology. The provider still
// receives HTTP 200 with this document.
func NewSayHangup(voice, language, message string) *Response {
	return &Response{
		Say: []Say{{
			Voice:    voice,
			Language: language,
			Text:     message,
		}},
		Hangup: &Hangup{},
	}
}

// Render serializes the document with the XML declaration the provider
// requires.
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "twiml: marshal response")
	}
	return append([]byte(xml.Header), body...), nil
}
