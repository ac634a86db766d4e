package assistant

import (
	"strings"
	"unicode/utf8"

	"github.com/hugohenrick/companychat/pkg/stream"
)

// SuggestTitle deriva um título curto a partir da primeira mensagem do
// usuário. Retorna "" quando não há título possível.
func SuggestTitle(firstMessage string) string {
	if t, ok := MatchTopic(firstMessage); ok {
		return t.Title
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', ':':
			return -1
		}
		return r
	}, firstMessage)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if utf8.RuneCountInString(cleaned) > stream.MaxTitleLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:stream.MaxTitleLength]))
	}

	if stream.ValidateTitle(cleaned) != nil {
		return ""
	}
	return cleaned
}
