// Package toolcalls pulls function invocations out of LLM provider responses.
package toolcalls

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ToolCall is one function invocation requested by a model. Arguments holds
// the provider's argument payload as a JSON string.
type ToolCall struct {
	FunctionName string `json:"function_name"`
	Arguments    string `json:"arguments"`
}

// extractor reads one provider shape. It returns nil when the shape is absent.
type extractor func(root gjson.Result) []ToolCall

// Order matters only for bodies that happen to carry several shapes; the
// first shape that yields calls wins.
var extractors = []extractor{
	openAIChat,
	openAIResponses,
	anthropicMessages,
	geminiCandidates,
	cohereV1,
	messageToolCalls,
}

// Extract returns the tool calls in body, in the order the provider listed
// them. Plain text, invalid JSON and unknown shapes yield an empty list.
func Extract(body []byte) []ToolCall {
	if !gjson.ValidBytes(body) {
		return []ToolCall{}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return []ToolCall{}
	}
	for _, ex := range extractors {
		if calls := ex(root); len(calls) > 0 {
			return calls
		}
	}
	return []ToolCall{}
}

// ExtractValue is Extract for an already-decoded response. Strings and byte
// slices are treated as raw bodies.
func ExtractValue(v any) []ToolCall {
	switch b := v.(type) {
	case nil:
		return []ToolCall{}
	case []byte:
		return Extract(b)
	case string:
		return Extract([]byte(b))
	case json.RawMessage:
		return Extract(b)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return []ToolCall{}
	}
	return Extract(body)
}

// choices[].message.tool_calls[].function, falling back to the legacy
// choices[].message.function_call.
func openAIChat(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("choices").ForEach(func(_, choice gjson.Result) bool {
		msg := choice.Get("message")
		if tcs := msg.Get("tool_calls"); tcs.IsArray() && len(tcs.Array()) > 0 {
			tcs.ForEach(func(_, tc gjson.Result) bool {
				calls = appendCall(calls, tc.Get("function.name"), tc.Get("function.arguments"))
				return true
			})
			return true
		}
		if fc := msg.Get("function_call"); fc.IsObject() {
			calls = appendCall(calls, fc.Get("name"), fc.Get("arguments"))
		}
		return true
	})
	return calls
}

// output[] items of type function_call.
func openAIResponses(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() == "function_call" {
			calls = appendCall(calls, item.Get("name"), item.Get("arguments"))
		}
		return true
	})
	return calls
}

// content[] blocks of type tool_use.
func anthropicMessages(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "tool_use" {
			calls = appendCall(calls, block.Get("name"), block.Get("input"))
		}
		return true
	})
	return calls
}

// candidates[].content.parts[].functionCall.
func geminiCandidates(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("candidates").ForEach(func(_, cand gjson.Result) bool {
		cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
			if fc := part.Get("functionCall"); fc.IsObject() {
				calls = appendCall(calls, fc.Get("name"), fc.Get("args"))
			}
			return true
		})
		return true
	})
	return calls
}

// Cohere v1 top-level tool_calls[]{name, parameters}.
func cohereV1(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		calls = appendCall(calls, tc.Get("name"), tc.Get("parameters"))
		return true
	})
	return calls
}

// message.tool_calls[].function, shared by Cohere v2 (string arguments) and
// Ollama (object arguments).
func messageToolCalls(root gjson.Result) []ToolCall {
	var calls []ToolCall
	root.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		calls = appendCall(calls, tc.Get("function.name"), tc.Get("function.arguments"))
		return true
	})
	return calls
}

func appendCall(calls []ToolCall, name, args gjson.Result) []ToolCall {
	if name.Type != gjson.String || name.String() == "" {
		return calls
	}
	return append(calls, ToolCall{FunctionName: name.String(), Arguments: arguments(args)})
}

// arguments renders a provider payload as a JSON string. String payloads are
// already serialized and pass through; objects are compacted.
func arguments(args gjson.Result) string {
	switch {
	case !args.Exists(), args.Type == gjson.Null:
		return "{}"
	case args.Type == gjson.String:
		return args.String()
	default:
		return gjson.Get(args.Raw, "@ugly").Raw
	}
}
