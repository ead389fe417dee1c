package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// PickPath tries "|"-separated dot paths against a JSON body, left to right,
// and returns the first value that exists and is not JSON null. Missing
// intermediate keys simply fail that candidate; nothing ever errors.
//
// The separator is split here rather than handed to gjson because gjson
// treats "|" as its pipe operator, which has different semantics.
func PickPath(body []byte, pathSpec string) (string, bool) {
	for _, path := range strings.Split(pathSpec, "|") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		res := gjson.GetBytes(body, path)
		if res.Exists() && res.Type != gjson.Null {
			return valueString(res), true
		}
	}
	return "", false
}

// valueString renders a gjson result as answer text: strings are unquoted,
// everything else keeps its raw JSON form.
func valueString(res gjson.Result) string {
	if res.Type == gjson.String {
		return res.Str
	}
	return res.Raw
}

// pickString is PickPath without the found flag, for optional fragments.
func pickString(body []byte, pathSpec string) string {
	s, _ := PickPath(body, pathSpec)
	return s
}

// firstArray returns the first candidate path holding a JSON array.
func firstArray(body []byte, pathSpec string) []gjson.Result {
	for _, path := range strings.Split(pathSpec, "|") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if res := gjson.GetBytes(body, path); res.IsArray() {
			return res.Array()
		}
	}
	return nil
}

// numberedSteps renders the first matching array as a numbered list.
func numberedSteps(body []byte, pathSpec string) string {
	steps := firstArray(body, pathSpec)
	if len(steps) == 0 {
		return ""
	}
	lines := make([]string, 0, len(steps))
	for i, step := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, valueString(step)))
	}
	return strings.Join(lines, "\n")
}

// rawText is the last-resort rendering of an upstream body: a JSON string
// root is unquoted, other valid JSON is pretty-printed, and anything that
// is not JSON at all comes back verbatim.
func rawText(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return string(body)
	}
	if root := gjson.ParseBytes(trimmed); root.Type == gjson.String {
		return root.Str
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, trimmed, "", "  "); err != nil {
		return string(body)
	}
	return pretty.String()
}
