package statestore

import "strings"

// stateKey returns the flat key for a runtime/path pair, following the
// key grammar "<runtime>/state/<dotted-path>".
func stateKey(runtime, path string) string {
	return runtime + "/state/" + path
}

// logKey returns the flat key for a runtime/service log queue:
// "<runtime>/<service_id>/logs".
func logKey(runtime, serviceID string) string {
	return runtime + "/" + serviceID + "/logs"
}

// assembleTree turns a set of "<runtime>/state/<dotted-path>" -> value
// pairs into the nested map a GetState caller expects, splitting each
// dotted path on "/" and building/descending intermediate maps. Booleans
// arrive as the strings "True"/"False" on the wire and are converted
// back to bool here.
func assembleTree(runtime string, flat map[string]string) map[string]any {
	prefix := runtime + "/state/"
	tree := make(map[string]any)
	for key, raw := range flat {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.TrimPrefix(key, prefix)
		segments := strings.Split(path, "/")
		cursor := tree
		for i, seg := range segments {
			if i == len(segments)-1 {
				cursor[seg] = decodeScalar(raw)
				continue
			}
			next, ok := cursor[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cursor[seg] = next
			}
			cursor = next
		}
	}
	return tree
}

func decodeScalar(raw string) any {
	switch raw {
	case "True":
		return true
	case "False":
		return false
	default:
		return raw
	}
}

func encodeScalar(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return v
	default:
		return toString(v)
	}
}
