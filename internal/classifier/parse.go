package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/licitaradar/licitaradar/internal/llmjson"
)

// approvedKeys are the object fields a model may wrap the approved list in.
var approvedKeys = []string{"aprovados", "approved", "ids", "viaveis", "viáveis"}

// ParseApproved reads the set of approved ids from a model response. The
// response may be a bare array, or an object holding the array under one of
// approvedKeys. Array elements may be strings, numbers, or objects with an
// "id" or "numeroControlePNCP" field.
func ParseApproved(raw string) (map[string]bool, error) {
	body := strings.TrimSpace(llmjson.StripFences(raw))

	var arr json.RawMessage
	if strings.HasPrefix(body, "{") {
		obj, err := llmjson.ExtractObject(body)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(obj, &fields); err != nil {
			return nil, err
		}
		for _, k := range approvedKeys {
			if v, ok := fields[k]; ok {
				arr = v
				break
			}
		}
		if arr == nil {
			return nil, fmt.Errorf("response object has none of %v", approvedKeys)
		}
	} else {
		var err error
		if arr, err = llmjson.ExtractArray(body); err != nil {
			return nil, err
		}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(arr, &elems); err != nil {
		return nil, fmt.Errorf("approved list is not an array: %w", err)
	}

	out := make(map[string]bool, len(elems))
	for _, e := range elems {
		if id := elementID(e); id != "" {
			out[id] = true
		}
	}
	return out, nil
}

func elementID(e json.RawMessage) string {
	var s string
	if json.Unmarshal(e, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(e, &n) == nil {
		return n.String()
	}
	var obj struct {
		ID         json.RawMessage `json:"id"`
		ControleID string          `json:"numeroControlePNCP"`
	}
	if json.Unmarshal(e, &obj) == nil {
		if obj.ControleID != "" {
			return strings.TrimSpace(obj.ControleID)
		}
		if obj.ID != nil {
			return elementID(obj.ID)
		}
	}
	return ""
}
