// Package realtime holds the wire vocabulary of the realtime speech channel:
// inbound server events, outbound client events, and the normalization of the
// several function-call shapes into one FunctionCall.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event types.
const (
	EventSessionCreated           = "session.created"
	EventSessionUpdated           = "session.updated"
	EventError                    = "error"
	EventFunctionArgumentsDone    = "response.function_call_arguments.done"
	EventConversationItemCreated  = "conversation.item.created"
	EventResponseOutputItemAdded  = "response.output_item.added"
	EventResponseOutputItemDone   = "response.output_item.done"
	EventAudioTranscriptDelta     = "response.audio_transcript.delta"
	EventAudioTranscriptDone      = "response.audio_transcript.done"
	EventTextDelta                = "response.text.delta"
	EventResponseDone             = "response.done"
	EventInputTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
)

// Outbound event types.
const (
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
	EventInputAudioAppend       = "input_audio_buffer.append"
)

const (
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeMessage            = "message"

	ItemStatusInProgress = "in_progress"
	ItemStatusCompleted  = "completed"
)

// DecodeError reports an inbound frame that is not a realtime event.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Item is the conversation item embedded in item-bearing events.
type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ErrorDetail is the payload of an inbound "error" event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// ServerEvent is a decoded inbound event. Only the fields this client acts on
// are typed; Raw keeps the original frame for the event log.
type ServerEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Name       string       `json:"name,omitempty"`
	CallID     string       `json:"call_id,omitempty"`
	Arguments  string       `json:"arguments,omitempty"`
	Item       *Item        `json:"item,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// DecodeServerEvent parses one inbound text frame.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, &DecodeError{Message: fmt.Sprintf("invalid event json: %v", err)}
	}
	if strings.TrimSpace(ev.Type) == "" {
		return ServerEvent{}, &DecodeError{Message: "event type is required"}
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

// Payload returns the raw frame as a generic map, for logging.
func (e ServerEvent) Payload() map[string]any {
	if len(e.Raw) == 0 {
		return map[string]any{"type": e.Type}
	}
	var m map[string]any
	if err := json.Unmarshal(e.Raw, &m); err != nil {
		return map[string]any{"type": e.Type}
	}
	return m
}

// FunctionCall is a normalized tool-invocation request.
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments string
	// Source is the event type the call was observed on.
	Source string
}

// ParseFunctionCall recognizes the three shapes a function call request can
// arrive in. It reports false for anything else. A function_call item with
// blank arguments is only a call once its status is completed; until then
// the arguments.done event carries it.
func ParseFunctionCall(ev ServerEvent) (FunctionCall, bool) {
	switch ev.Type {
	case EventFunctionArgumentsDone:
		if strings.TrimSpace(ev.Name) == "" {
			return FunctionCall{}, false
		}
		return FunctionCall{CallID: ev.CallID, Name: ev.Name, Arguments: ev.Arguments, Source: ev.Type}, true
	case EventConversationItemCreated, EventResponseOutputItemAdded:
		item := ev.Item
		if item == nil || item.Type != ItemTypeFunctionCall || strings.TrimSpace(item.Name) == "" {
			return FunctionCall{}, false
		}
		if item.Status != ItemStatusCompleted && strings.TrimSpace(item.Arguments) == "" {
			return FunctionCall{}, false
		}
		return FunctionCall{CallID: item.CallID, Name: item.Name, Arguments: item.Arguments, Source: ev.Type}, true
	default:
		return FunctionCall{}, false
	}
}

// ClientEvent is an outbound event. It stays a map so event_id can be filled
// in by the sender without knowing the concrete shape.
type ClientEvent map[string]any

func (e ClientEvent) Type() string {
	s, _ := e["type"].(string)
	return s
}

func (e ClientEvent) EventID() string {
	s, _ := e["event_id"].(string)
	return s
}

// Clone copies the top level so a log copy can be annotated without touching
// the transmitted event.
func (e ClientEvent) Clone() ClientEvent {
	out := make(ClientEvent, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// FunctionCallOutput creates the conversation item answering callID.
func FunctionCallOutput(callID, output string) ClientEvent {
	return ClientEvent{
		"type": EventConversationItemCreate,
		"item": map[string]any{
			"type":    ItemTypeFunctionCallOutput,
			"call_id": callID,
			"output":  output,
		},
	}
}

// ResponseCreate asks the model to continue generating.
func ResponseCreate() ClientEvent {
	return ClientEvent{"type": EventResponseCreate}
}

// UserText creates a user message item carrying text.
func UserText(text string) ClientEvent {
	return ClientEvent{
		"type": EventConversationItemCreate,
		"item": map[string]any{
			"type": ItemTypeMessage,
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
}

// AudioAppend appends base64 PCM audio to the input buffer.
func AudioAppend(audioBase64 string) ClientEvent {
	return ClientEvent{"type": EventInputAudioAppend, "audio": audioBase64}
}
