package hls

import "strings"

// ParseAttributes parses an attribute list such as
// `BANDWIDTH=1280000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"`.
// Quoted values keep embedded commas and lose their quotes. Keys without a
// value map to "". Malformed input never fails; it just yields fewer pairs.
func ParseAttributes(body string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(body) {
		for i < len(body) && (body[i] == ',' || body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) {
			break
		}
		keyStart := i
		for i < len(body) && body[i] != '=' && body[i] != ',' {
			i++
		}
		key := strings.TrimSpace(body[keyStart:i])
		if i >= len(body) || body[i] == ',' {
			if key != "" {
				attrs[key] = ""
			}
			continue
		}
		i++ // '='
		var value string
		if i < len(body) && body[i] == '"' {
			end := strings.IndexByte(body[i+1:], '"')
			if end < 0 {
				value = body[i+1:]
				i = len(body)
			} else {
				value = body[i+1 : i+1+end]
				i += end + 2
			}
			// skip anything up to the next separator
			for i < len(body) && body[i] != ',' {
				i++
			}
		} else {
			valStart := i
			for i < len(body) && body[i] != ',' {
				i++
			}
			value = strings.TrimSpace(body[valStart:i])
		}
		if key != "" {
			attrs[key] = value
		}
	}
	return attrs
}
