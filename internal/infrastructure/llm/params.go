package llm

import (
	"github.com/evalgate/evalgate/internal/domain/entity"
)

// Parameter support matrix. Only parameters with enabled=true are sent, each
// renamed to the protocol's field name; parameters a protocol does not
// support are dropped, as are unknown names and empty stop-sequence lists.
//
//	param             openai-compat   anthropic       gemini
//	temperature       temperature     temperature     temperature
//	max_tokens        max_tokens      max_tokens      max_output_tokens
//	top_p             top_p           top_p           top_p
//	top_k             —               top_k           top_k
//	frequency_penalty frequency_penalty —             frequency_penalty
//	presence_penalty  presence_penalty —              presence_penalty
//	stop_sequences    stop            stop_sequences  stop
var paramNames = map[entity.AdapterKind]map[string]string{
	entity.KindOpenAICompat: {
		"temperature":       "temperature",
		"max_tokens":        "max_tokens",
		"top_p":             "top_p",
		"frequency_penalty": "frequency_penalty",
		"presence_penalty":  "presence_penalty",
		"stop_sequences":    "stop",
	},
	entity.KindAnthropic: {
		"temperature":    "temperature",
		"max_tokens":     "max_tokens",
		"top_p":          "top_p",
		"top_k":          "top_k",
		"stop_sequences": "stop_sequences",
	},
	entity.KindGemini: {
		"temperature":       "temperature",
		"max_tokens":        "max_output_tokens",
		"top_p":             "top_p",
		"top_k":             "top_k",
		"frequency_penalty": "frequency_penalty",
		"presence_penalty":  "presence_penalty",
		"stop_sequences":    "stop",
	},
}

// ProjectParams maps enabled model parameters onto the wire fields of one
// protocol.
func ProjectParams(kind entity.AdapterKind, params entity.ModelParams) map[string]any {
	names := paramNames[kind]
	if names == nil || len(params) == 0 {
		return nil
	}

	out := map[string]any{}
	for name, setting := range params {
		if !setting.Enabled {
			continue
		}
		wireName, supported := names[name]
		if !supported {
			continue
		}
		if name == "stop_sequences" {
			seqs := toStringSlice(setting.Value)
			if len(seqs) == 0 {
				continue
			}
			out[wireName] = seqs
			continue
		}
		out[wireName] = setting.Value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	}
	return nil
}
