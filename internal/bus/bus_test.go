package bus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

func TestAttemptsOf(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 1},
		{"missing header", amqp.Table{}, 1},
		{"int32", amqp.Table{headerAttempts: int32(3)}, 3},
		{"int64", amqp.Table{headerAttempts: int64(4)}, 4},
		{"int", amqp.Table{headerAttempts: 5}, 5},
		{"garbage", amqp.Table{headerAttempts: "x"}, 1},
	}

	for _, tt := range tests {
		raw := amqp.Delivery{Headers: tt.headers}
		if got := attemptsOf(&raw); got != tt.want {
			t.Errorf("%s: attempts = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("nil must stay nil")
	}

	var syntax error = &json.SyntaxError{}
	if got := Classify(syntax); !errors.Is(got, ErrSerialization) {
		t.Errorf("json error = %v, want ErrSerialization", got)
	}

	authErr := &amqp.Error{Code: amqp.AccessRefused, Reason: "access refused"}
	if got := Classify(authErr); !errors.Is(got, ErrAuth) {
		t.Errorf("access refused = %v, want ErrAuth", got)
	}

	connErr := &amqp.Error{Code: amqp.ConnectionForced, Reason: "forced"}
	if got := Classify(connErr); !errors.Is(got, ErrBusUnavailable) {
		t.Errorf("connection error = %v, want ErrBusUnavailable", got)
	}

	if got := Classify(errors.New("anything")); !errors.Is(got, ErrBusUnavailable) {
		t.Errorf("unknown error = %v, want ErrBusUnavailable", got)
	}
}

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrSerialization, "SerializationError"},
		{ErrAuth, "AuthError"},
		{ErrBusUnavailable, "BusUnavailable"},
		{errors.New("handler blew up"), "Retryable"},
	}
	for _, tt := range tests {
		if got := classifyKind(tt.err); got != tt.want {
			t.Errorf("classifyKind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestNewMessage_And_ParsePayload(t *testing.T) {
	item := &domain.RawItem{
		SourceID:   "src-9",
		Source:     "gdelt",
		Payload:    map[string]any{"text": "flood reported"},
		IngestedAt: time.Now().UTC(),
	}

	msg, err := newMessage(MessageTypeRawItem, item.SourceID, item)
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}
	if msg.Key != "src-9" {
		t.Errorf("key = %s, want src-9", msg.Key)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("message must carry id and timestamp")
	}

	parsed, err := ParsePayload[domain.RawItem](msg)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if parsed.SourceID != item.SourceID || parsed.Source != item.Source {
		t.Error("payload must round-trip")
	}
}

func TestParsePayload_Malformed(t *testing.T) {
	msg := &Message{Payload: json.RawMessage(`{"broken`)}
	if _, err := ParsePayload[domain.RawItem](msg); !errors.Is(err, ErrSerialization) {
		t.Errorf("err = %v, want ErrSerialization", err)
	}
}

func TestDeadLetterEnvelope_JSON(t *testing.T) {
	env := DeadLetterEnvelope{
		OriginalTopic:  "raw-items",
		OriginalOffset: "msg-1",
		FirstSeenAt:    time.Now().UTC(),
		Attempts:       5,
	}
	env.LastError.Kind = "Retryable"
	env.LastError.Detail = "upstream 503"

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"original_topic", "original_partition", "original_offset", "first_seen_at", "last_error", "attempts"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("envelope missing field %s", field)
		}
	}
}
