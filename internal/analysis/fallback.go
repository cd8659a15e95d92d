package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/voicelead/calltrack/internal/model"
)

// tagKeywords maps each vocabulary tag to transcript phrases that imply
// it. Portuguese first since the assistant speaks pt-BR, English second
// for mixed-language calls. Order inside a slice does not matter; the
// tag order follows model.AllTags so the first matching tag wins.
var tagKeywords = map[model.Tag][]string{
	model.TagScheduled: {
		"agendado", "agendamento confirmado", "marcado para", "consulta marcada",
		"scheduled", "booked",
	},
	model.TagRescheduled: {
		"remarcado", "remarcar", "reagendar", "mudar o horário",
		"rescheduled", "reschedule",
	},
	model.TagCanceled: {
		"cancelar", "cancelado", "desmarcar",
		"cancel", "canceled",
	},
	model.TagCallBackRequested: {
		"me liga", "retornar a ligação", "ligar de volta", "retorno depois",
		"call me back", "call back",
	},
	model.TagSendInfo: {
		"enviar informações", "manda por whatsapp", "manda por email", "enviar por email",
		"send me the information", "send info",
	},
	model.TagNoSlot: {
		"sem horário", "não tem horário", "agenda cheia", "sem vaga",
		"no availability", "fully booked",
	},
	model.TagWrongNumber: {
		"número errado", "ligação errada", "engano",
		"wrong number",
	},
}

var negativeWords = []string{
	"reclamação", "péssimo", "horrível", "absurdo", "insatisfeito", "raiva",
	"terrible", "awful", "complaint", "frustrated",
}

var positiveWords = []string{
	"obrigado", "obrigada", "ótimo", "perfeito", "maravilha", "excelente",
	"thank you", "great", "perfect",
}

// classifyFallback tags a transcript with keyword heuristics when the
// language model is unavailable. It walks the vocabulary in canonical
// order and returns the first tag with a keyword hit, defaulting to
// Did-not-schedule: a call that produced a transcript but matched
// nothing was answered and went nowhere.
func classifyFallback(transcript string) Classification {
	lower := strings.ToLower(transcript)

	tag := model.TagDidNotSchedule
	for _, candidate := range model.AllTags {
		keywords, ok := tagKeywords[candidate]
		if !ok {
			continue
		}
		if containsAny(lower, keywords) {
			tag = candidate
			break
		}
	}

	sentiment := model.SentimentNeutral
	switch {
	case containsAny(lower, negativeWords):
		sentiment = model.SentimentNegative
	case containsAny(lower, positiveWords):
		sentiment = model.SentimentPositive
	}

	return Classification{
		Summary:   summarizeFallback(transcript),
		Sentiment: sentiment,
		Tags:      []model.Tag{tag},
		Fallback:  true,
	}
}

// summarizeFallback truncates the transcript to a short excerpt. The cut
// lands on a word boundary when one exists, and never inside a multi-byte
// rune: the transcripts are Portuguese, so accented characters are common.
func summarizeFallback(transcript string) string {
	const maxLen = 200
	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) <= maxLen {
		return trimmed
	}
	end := maxLen
	for end > 0 && !utf8.RuneStart(trimmed[end]) {
		end--
	}
	cut := trimmed[:end]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
