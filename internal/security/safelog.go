package security

import (
	"regexp"
	"sort"
	"strings"
)

// sensitiveFields contains setting or field names whose values are masked.
var sensitiveFields = map[string]bool{
	"token":         true,
	"access_token":  true,
	"auth_token":    true,
	"jwt":           true,
	"jwt_token":     true,
	"authorization": true,
	"bearer":        true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"api_secret":    true,
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer)\s+([A-Za-z0-9_\-\.=]+)`),
	regexp.MustCompile(`(?i)(token|access[_-]?token|jwt|password|secret)([=:]\s*)["']?([^\s"'&]+)["']?`),
	// JWTs seen bare inside error strings
	regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`),
}

// IsSensitiveField reports whether a field or setting name holds a secret.
// Dotted keys like service.token are matched on their last segment.
func IsSensitiveField(field string) bool {
	field = strings.ToLower(field)
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return sensitiveFields[field]
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	default:
		return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
}

// MaskSensitive masks bearer tokens, key=value secrets and bare JWTs
// found inside free text such as error messages.
func MaskSensitive(input string) string {
	out := sensitivePatterns[0].ReplaceAllStringFunc(input, func(m string) string {
		sub := sensitivePatterns[0].FindStringSubmatch(m)
		return sub[1] + " " + MaskCredential(sub[2])
	})
	out = sensitivePatterns[1].ReplaceAllStringFunc(out, func(m string) string {
		sub := sensitivePatterns[1].FindStringSubmatch(m)
		return sub[1] + sub[2] + MaskCredential(sub[3])
	})
	return sensitivePatterns[2].ReplaceAllStringFunc(out, MaskCredential)
}

// ContainsSensitiveData reports whether input carries something MaskSensitive
// would change.
func ContainsSensitiveData(input string) bool {
	return MaskSensitive(input) != input
}

// MaskSettings returns a copy of a nested settings map with secret values
// masked, as produced by viper.AllSettings.
func MaskSettings(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = MaskSettings(val)
		case string:
			if IsSensitiveField(k) {
				out[k] = MaskCredential(val)
			} else {
				out[k] = val
			}
		default:
			if IsSensitiveField(k) {
				out[k] = "***"
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// FlattenSettings lists a nested settings map as sorted dotted key/value pairs.
func FlattenSettings(settings map[string]interface{}) [][2]interface{} {
	var out [][2]interface{}
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if nested, ok := v.(map[string]interface{}); ok {
				walk(key, nested)
				continue
			}
			out = append(out, [2]interface{}{key, v})
		}
	}
	walk("", settings)
	sort.Slice(out, func(i, j int) bool { return out[i][0].(string) < out[j][0].(string) })
	return out
}
