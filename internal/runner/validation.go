package runner

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/netloom/flowengine/pkg/models"
)

// validate extracts the section named by validation.Section out of the
// raw device result, optionally
// normalize it, then compare per validation_method. The gojq query engine
// gives validation_section the same dotted/indexed addressing power the
// source's attribute-chain lookup had (`results["a"]["b"][0]`), without
// the safety hole of eval()ing arbitrary Python.
func validate(v models.Validation, rawSuccess bool, result map[string]any) (bool, error) {
	if v.Condition == models.ValidationConditionNone {
		return rawSuccess, nil
	}
	applies := (v.Condition == models.ValidationConditionSuccess && rawSuccess) ||
		(v.Condition == models.ValidationConditionFailure && !rawSuccess)
	if !applies {
		return rawSuccess, nil
	}

	section, err := extractSection(v.Section, result)
	if err != nil {
		return false, fmt.Errorf("runner: validation_section %q: %w", v.Section, err)
	}
	section, err = applyConversion(v.ConversionMethod, section)
	if err != nil {
		return false, fmt.Errorf("runner: conversion_method %q: %w", v.ConversionMethod, err)
	}

	var matched bool
	switch v.Method {
	case models.ValidationMethodDict:
		matched = dictMatch(v.DictMatch, section)
	default:
		text := toText(section)
		if v.DeleteSpacesBeforeMatching {
			text = strings.ReplaceAll(text, " ", "")
		}
		if v.ContentMatchRegex {
			re, err := regexp.Compile(v.ContentMatch)
			if err != nil {
				return false, fmt.Errorf("runner: content_match_regex: %w", err)
			}
			matched = re.MatchString(text)
		} else {
			matched = strings.Contains(text, v.ContentMatch)
		}
	}
	if v.NegativeLogic {
		matched = !matched
	}
	return matched, nil
}

// extractSection runs a gojq query (e.g. ".result" or ".interfaces[0].name")
// against the device result map. An empty section selects the whole
// result; a section without a leading "." gets one, so a bare name such as
// "result" (the default Service.Validate fills in) reads that key.
func extractSection(section string, result map[string]any) (any, error) {
	query := section
	if query == "" {
		query = "."
	}
	if !strings.HasPrefix(query, ".") {
		query = "." + query
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	iter := parsed.Run(map[string]any(result))
	out, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := out.(error); ok {
		return nil, err
	}
	return out, nil
}

// applyConversion normalizes the extracted section before matching, per
// validation_section's conversion_method. "none" (the default) and ""
// leave the value untouched.
func applyConversion(method string, value any) (any, error) {
	switch method {
	case "", "none":
		return value, nil
	case "text":
		return toText(value), nil
	case "int":
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case string:
			return strconv.Atoi(v)
		default:
			return strconv.Atoi(toText(value))
		}
	case "float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			return strconv.ParseFloat(v, 64)
		default:
			return strconv.ParseFloat(toText(value), 64)
		}
	case "json":
		text, ok := value.(string)
		if !ok {
			return value, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown conversion method %q", method)
	}
}

// dictMatch reports whether expected is a sub-structure of actual: every
// key/value pair in expected must be present (recursively, for nested
// maps) in actual.
func dictMatch(expected map[string]any, actual any) bool {
	if len(expected) == 0 {
		return true
	}
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expected {
		got, exists := actualMap[key]
		if !exists {
			return false
		}
		if wantMap, ok := want.(map[string]any); ok {
			if !dictMatch(wantMap, got) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
