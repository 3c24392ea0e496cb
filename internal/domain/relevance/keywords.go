package relevance

import (
	"strings"
	"unicode"
)

// WorkSignal - признак формата работы в тексте проекта.
type WorkSignal string

const (
	SignalSolo         WorkSignal = "solo"
	SignalTeam         WorkSignal = "team"
	SignalOrganization WorkSignal = "organization"
)

// KeywordTables - настраиваемые словари эвристик.
type KeywordTables struct {
	// InterestCategories - интерес (в нижнем регистре) → подходящие категории.
	InterestCategories map[string][]Category `yaml:"interest_categories"`

	// AdvancedTerms - слова, повышающие оценку сложности на 1.
	AdvancedTerms []string `yaml:"advanced_terms"`

	// WorkStyleSignals - сигналы формата работы.
	WorkStyleSignals map[WorkSignal][]string `yaml:"work_style_signals"`

	// ImpactSignals - сигналы масштаба влияния.
	ImpactSignals map[ImpactScope][]string `yaml:"impact_signals"`
}

// categoriesFor возвращает категории интереса: точное совпадение ключа,
// иначе объединение категорий всех ключей, встречающихся в интересе как слово.
func (t *KeywordTables) categoriesFor(interest string) map[Category]bool {
	set := make(map[Category]bool)
	if cats, ok := t.InterestCategories[interest]; ok {
		for _, c := range cats {
			set[c] = true
		}
		return set
	}

	text := normalize(interest)
	for key, cats := range t.InterestCategories {
		if containsKeyword(text, key) {
			for _, c := range cats {
				set[c] = true
			}
		}
	}
	return set
}

// normalize приводит текст к нижнему регистру, заменяет всё, кроме букв
// и цифр, на пробелы и обрамляет пробелами для поиска целых слов.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// containsKeyword ищет keyword в нормализованном тексте как целую фразу.
func containsKeyword(normalized, keyword string) bool {
	kw := normalize(keyword)
	if strings.TrimSpace(kw) == "" {
		return false
	}
	return strings.Contains(normalized, kw)
}

// countDistinct считает различные ключевые слова, найденные в тексте.
func countDistinct(normalized string, keywords []string) int {
	seen := make(map[string]bool, len(keywords))
	n := 0
	for _, kw := range keywords {
		key := strings.TrimSpace(normalize(kw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if containsKeyword(normalized, kw) {
			n++
		}
	}
	return n
}

// containsAny возвращает true, если в тексте есть хотя бы одно слово из списка.
func containsAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(normalized, kw) {
			return true
		}
	}
	return false
}
