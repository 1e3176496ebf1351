package mailbox

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the variant held by a Content.
type Kind string

const (
	KindText       Kind = "text"
	KindResult     Kind = "result"
	KindCompletion Kind = "completion"
)

// Content is the payload of a mailbox line. Exactly one variant is set,
// selected by Kind.
//
// On disk a text payload is a bare JSON string so plain-string producers
// interoperate. The other variants are objects tagged with "type":
//
//	"hello"
//	{"type":"result","data":{...}}
//	{"type":"completion","status":"complete","result":"...","exitCode":0}
type Content struct {
	Kind       Kind
	Text       string
	Data       json.RawMessage
	Completion *Completion
}

// Completion is a worker's final report.
type Completion struct {
	Status   State  `json:"status"`
	Result   string `json:"result,omitempty"`
	ExitCode int    `json:"exitCode"`
}

// Text returns a text payload.
func Text(s string) Content {
	return Content{Kind: KindText, Text: s}
}

// Result returns a structured payload holding the JSON encoding of v.
func Result(v any) (Content, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Content{}, fmt.Errorf("encoding result: %w", err)
	}
	return Content{Kind: KindResult, Data: data}, nil
}

// CompletionReport returns a completion payload.
func CompletionReport(c Completion) Content {
	return Content{Kind: KindCompletion, Completion: &c}
}

// String renders the payload for humans and LLM context.
func (c Content) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindResult:
		return string(c.Data)
	case KindCompletion:
		if c.Completion == nil {
			return "[completion]"
		}
		s := fmt.Sprintf("[%s exit=%d]", c.Completion.Status, c.Completion.ExitCode)
		if c.Completion.Result != "" {
			s += " " + c.Completion.Result
		}
		return s
	default:
		return ""
	}
}

type taggedResult struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type taggedCompletion struct {
	Type string `json:"type"`
	Completion
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindText, "":
		return json.Marshal(c.Text)
	case KindResult:
		data := c.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(taggedResult{Type: string(KindResult), Data: data})
	case KindCompletion:
		var comp Completion
		if c.Completion != nil {
			comp = *c.Completion
		}
		return json.Marshal(taggedCompletion{Type: string(KindCompletion), Completion: comp})
	default:
		return nil, fmt.Errorf("mailbox: unknown content kind %q", c.Kind)
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("mailbox: empty content")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case '{':
		var probe struct {
			Type string          `json:"type"`
			Text *string         `json:"text"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return err
		}
		switch Kind(probe.Type) {
		case KindText:
			if probe.Text != nil {
				*c = Text(*probe.Text)
				return nil
			}
		case KindResult:
			*c = Content{Kind: KindResult, Data: append(json.RawMessage(nil), probe.Data...)}
			return nil
		case KindCompletion:
			var tc taggedCompletion
			if err := json.Unmarshal(data, &tc); err != nil {
				return err
			}
			*c = CompletionReport(tc.Completion)
			return nil
		}
	}

	// Untagged objects, numbers, arrays and the like are kept verbatim.
	*c = Content{Kind: KindResult, Data: append(json.RawMessage(nil), data...)}
	return nil
}
