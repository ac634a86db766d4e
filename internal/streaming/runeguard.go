package streaming

import (
	"strings"
	"unicode/utf8"
)

// runeGuard segura bytes finais incompletos de um code point UTF-8 até
// que o próximo fragmento os complete
type runeGuard struct {
	pending []byte
}

// Push retorna a parte de fragment (somada ao que estava pendente) que
// termina num limite de code point
func (g *runeGuard) Push(fragment string) string {
	buf := append(g.pending, fragment...)
	g.pending = nil

	cut := len(buf)
	// um code point tem no máximo utf8.UTFMax bytes
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}

	if cut < len(buf) {
		g.pending = append([]byte(nil), buf[cut:]...)
	}
	return strings.ToValidUTF8(string(buf[:cut]), string(utf8.RuneError))
}

// Flush devolve os bytes ainda pendentes, substituindo sequências
// inválidas
func (g *runeGuard) Flush() string {
	if len(g.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(g.pending), string(utf8.RuneError))
	g.pending = nil
	return out
}
