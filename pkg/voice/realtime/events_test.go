package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) ServerEvent {
	t.Helper()
	ev, err := DecodeServerEvent([]byte(raw))
	require.NoError(t, err)
	return ev
}

func TestParseFunctionCall_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FunctionCall
		ok   bool
	}{
		{
			name: "arguments done",
			raw:  `{"type":"response.function_call_arguments.done","name":"search_places","arguments":"{\"query\":\"coffee\"}","call_id":"c1"}`,
			want: FunctionCall{CallID: "c1", Name: "search_places", Arguments: `{"query":"coffee"}`, Source: EventFunctionArgumentsDone},
			ok:   true,
		},
		{
			name: "item created",
			raw:  `{"type":"conversation.item.created","item":{"type":"function_call","name":"get_directions","call_id":"c2","arguments":"{}","status":"completed"}}`,
			want: FunctionCall{CallID: "c2", Name: "get_directions", Arguments: "{}", Source: EventConversationItemCreated},
			ok:   true,
		},
		{
			name: "output item added",
			raw:  `{"type":"response.output_item.added","item":{"type":"function_call","name":"web_search","call_id":"c3","arguments":"{\"query\":\"x\"}"}}`,
			want: FunctionCall{CallID: "c3", Name: "web_search", Arguments: `{"query":"x"}`, Source: EventResponseOutputItemAdded},
			ok:   true,
		},
		{
			name: "in progress without arguments is ignored",
			raw:  `{"type":"response.output_item.added","item":{"type":"function_call","name":"search_places","call_id":"c4","arguments":"","status":"in_progress"}}`,
		},
		{
			name: "blank arguments without status are ignored",
			raw:  `{"type":"response.output_item.added","item":{"type":"function_call","name":"search_places","call_id":"c5","arguments":""}}`,
		},
		{
			name: "completed with blank arguments is a call",
			raw:  `{"type":"conversation.item.created","item":{"type":"function_call","name":"get_directions","call_id":"c6","arguments":"","status":"completed"}}`,
			want: FunctionCall{CallID: "c6", Name: "get_directions", Source: EventConversationItemCreated},
			ok:   true,
		},
		{
			name: "message item is ignored",
			raw:  `{"type":"conversation.item.created","item":{"type":"message","role":"user"}}`,
		},
		{
			name: "transcript delta is ignored",
			raw:  `{"type":"response.audio_transcript.delta","delta":"hi"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFunctionCall(decode(t, tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDecodeServerEvent_Errors(t *testing.T) {
	_, err := DecodeServerEvent([]byte(`not json`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	_, err = DecodeServerEvent([]byte(`{"delta":"x"}`))
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Error(), "type")
}

func TestDecodeServerEvent_KeepsRaw(t *testing.T) {
	ev := decode(t, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "bad", ev.Error.Message)
	assert.Equal(t, "error", ev.Payload()["type"])
}

func TestClientEvents_Shape(t *testing.T) {
	out := FunctionCallOutput("c1", `{"ok":true}`)
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"conversation.item.create","item":{"type":"function_call_output","call_id":"c1","output":"{\"ok\":true}"}}`, string(b))

	assert.Equal(t, EventResponseCreate, ResponseCreate().Type())

	b, err = json.Marshal(UserText("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"conversation.item.create","item":{"type":"message","role":"user","content":[{"type":"input_text","text":"hello"}]}}`, string(b))
}

func TestClientEvent_CloneIsIndependent(t *testing.T) {
	ev := ResponseCreate()
	ev["event_id"] = "e1"
	c := ev.Clone()
	c["timestamp"] = "now"
	_, has := ev["timestamp"]
	assert.False(t, has)
	assert.Equal(t, "e1", c.EventID())
}
