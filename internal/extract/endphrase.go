package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const weakPhraseMaxLen = 30

// Strong phrases close the conversation wherever they appear.
var strongEndPhrases = []string{
	"terima kasih", "terimakasih", "makasih", "thank you", "thanks",
	"sampai jumpa", "sampai ketemu", "sudah selesai", "udah selesai",
	"cukup sekian", "sekian dulu", "sekian saja", "itu saja", "itu aja",
	"sudah cukup", "udah cukup", "goodbye", "dadah",
}

// Weak phrases only count on their own or inside a short reply.
var weakEndPhrases = []string{
	"cukup", "selesai", "tidak", "tidak ada", "ga", "gak", "ngga", "nggak",
	"enggak", "dah", "udah", "sudah", "done", "bye",
}

// IsEnd reports whether the user is signalling that the chat is over.
func IsEnd(message string) bool {
	t := strings.ToLower(strings.TrimSpace(message))
	if t == "" {
		return false
	}
	for _, p := range strongEndPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}

	bare := strings.TrimFunc(t, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	short := utf8.RuneCountInString(t) < weakPhraseMaxLen
	padded := " " + strings.Join(words(t), " ") + " "
	for _, p := range weakEndPhrases {
		if bare == p {
			return true
		}
		if short && strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func words(t string) []string {
	return strings.FieldsFunc(t, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
