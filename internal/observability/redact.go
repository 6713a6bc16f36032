package observability

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/m-mizutani/masq"
)

// RedactedValue replaces sensitive attribute values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never logged verbatim.
// Matching is case-insensitive.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"apikey":        {},
	"api_key":       {},
	"credential":    {},
	"authorization": {},
	"oauth_token":   {},
}

// urlParamPattern matches sensitive query parameters inside URL strings so
// that request logging cannot leak credentials passed as query values.
var urlParamPattern = regexp.MustCompile(`(?i)([?&])(password|secret|token|apikey|api_key|credential)=([^&\s]*)`)

// structCloner deep-copies attribute values, censoring struct fields tagged
// `masq:"secret"` and well-known credential field names. This covers values
// logged with slog.Any, such as configuration sections.
var structCloner = masq.New(
	masq.WithFieldName("OAuthToken"),
	masq.WithFieldName("ClientSecret"),
	masq.WithFieldName("Authorization"),
)

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// redactAttr censors a single attribute. Sensitive keys have their whole
// value replaced; string values are additionally scrubbed for credential
// query parameters. Struct values are passed through the masq cloner.
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		a.Value = slog.StringValue(RedactedValue)
		return a
	}

	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if strings.Contains(s, "=") {
			a.Value = slog.StringValue(urlParamPattern.ReplaceAllString(s, "${1}${2}="+RedactedValue))
		}
		return a
	}

	return structCloner(groups, a)
}
