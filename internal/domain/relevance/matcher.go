package relevance

import (
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE
// ══════════════════════════════════════════════════════════════════════════════

// NeutralScore - оценка без профиля или без применимых факторов.
const NeutralScore = 50

// baseComplexity - сложность проекта без продвинутых терминов.
const baseComplexity = 3

// MatchScore - оценка релевантности (0-100).
type MatchScore int

// IsValid проверяет корректность оценки.
func (m MatchScore) IsValid() bool {
	return m >= 0 && m <= 100
}

// Int возвращает значение оценки.
func (m MatchScore) Int() int {
	return int(m)
}

// Quality возвращает качественную оценку.
func (m MatchScore) Quality() MatchQuality {
	switch {
	case m >= 80:
		return MatchQualityExcellent
	case m >= 60:
		return MatchQualityGood
	case m >= 40:
		return MatchQualityFair
	case m >= 20:
		return MatchQualityPoor
	default:
		return MatchQualityNone
	}
}

// MatchQuality определяет качество совпадения.
type MatchQuality string

const (
	// MatchQualityExcellent - 80-100.
	MatchQualityExcellent MatchQuality = "excellent"
	// MatchQualityGood - 60-79.
	MatchQualityGood MatchQuality = "good"
	// MatchQualityFair - 40-59.
	MatchQualityFair MatchQuality = "fair"
	// MatchQualityPoor - 20-39.
	MatchQualityPoor MatchQuality = "poor"
	// MatchQualityNone - 0-19.
	MatchQualityNone MatchQuality = "none"
)

// Factor - название фактора оценки.
type Factor string

const (
	FactorCategory   Factor = "category"
	FactorComplexity Factor = "complexity"
	FactorWorkStyle  Factor = "work_style"
	FactorImpact     Factor = "impact"
)

// MatchReason - вклад одного фактора.
type MatchReason struct {
	// Factor - название фактора.
	Factor Factor

	// Score - оценка по фактору (0-100).
	Score int
}

// Assessment - итоговая оценка и применённые факторы.
type Assessment struct {
	Score   MatchScore
	Reasons []MatchReason
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Matcher оценивает проекты по словарям KeywordTables.
// Не имеет состояния кроме словарей и безопасен для конкурентного использования.
type Matcher struct {
	tables *KeywordTables
}

// NewMatcher создаёт Matcher.
func NewMatcher(tables *KeywordTables) *Matcher {
	if tables == nil {
		tables = &KeywordTables{}
	}
	return &Matcher{tables: tables}
}

// Score возвращает оценку проекта для профиля. profile == nil даёт 50.
func (m *Matcher) Score(project Project, profile *Profile) int {
	return m.Assess(project, profile).Score.Int()
}

// Assess возвращает оценку вместе с разбивкой по факторам.
func (m *Matcher) Assess(project Project, profile *Profile) Assessment {
	if profile == nil {
		return Assessment{Score: NeutralScore}
	}

	text := normalize(project.Text())
	var reasons []MatchReason

	if s, ok := m.categoryAffinity(project.Category, profile); ok {
		reasons = append(reasons, MatchReason{Factor: FactorCategory, Score: s})
	}
	if s, ok := m.complexityAffinity(project.Description, profile); ok {
		reasons = append(reasons, MatchReason{Factor: FactorComplexity, Score: s})
	}
	if s, ok := m.workStyleAffinity(text, profile); ok {
		reasons = append(reasons, MatchReason{Factor: FactorWorkStyle, Score: s})
	}
	if s, ok := m.impactAffinity(text, profile); ok {
		reasons = append(reasons, MatchReason{Factor: FactorImpact, Score: s})
	}

	if len(reasons) == 0 {
		return Assessment{Score: NeutralScore}
	}

	sum := 0
	for _, r := range reasons {
		sum += r.Score
	}
	mean := math.Round(float64(sum) / float64(len(reasons)))
	return Assessment{Score: clampScore(mean), Reasons: reasons}
}

// SortByRelevance возвращает новый срез, отсортированный по убыванию оценки.
// При равенстве сохраняется исходный порядок.
func (m *Matcher) SortByRelevance(projects []Project, profile *Profile) []Project {
	ranked := m.Rank(projects, profile)
	out := make([]Project, len(ranked))
	for i, r := range ranked {
		out[i] = r.Project
	}
	return out
}

// RankedProject - проект с его оценкой.
type RankedProject struct {
	Project    Project
	Assessment Assessment
}

// Rank оценивает каждый проект один раз и сортирует устойчиво по убыванию.
func (m *Matcher) Rank(projects []Project, profile *Profile) []RankedProject {
	ranked := make([]RankedProject, len(projects))
	for i, p := range projects {
		ranked[i] = RankedProject{Project: p, Assessment: m.Assess(p, profile)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Assessment.Score > ranked[j].Assessment.Score
	})
	return ranked
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORS
// ══════════════════════════════════════════════════════════════════════════════

func (m *Matcher) categoryAffinity(category Category, profile *Profile) (int, bool) {
	interests := profile.Interests()
	if len(interests) == 0 {
		return 0, false
	}

	matched := 0
	for _, interest := range interests {
		if m.tables.categoriesFor(interest)[category] {
			matched++
		}
	}
	return int(math.Round(100 * float64(matched) / float64(len(interests)))), true
}

func (m *Matcher) complexityAffinity(description string, profile *Profile) (int, bool) {
	if !profile.HasChallengeLevel() {
		return 0, false
	}

	estimated := baseComplexity + countDistinct(normalize(description), m.tables.AdvancedTerms)
	diff := profile.ChallengeLevel - estimated
	if diff < 0 {
		diff = -diff
	}
	return max(0, 100-10*diff), true
}

// workStyleScores - оценка по формату работы студента и сигналу проекта.
var workStyleScores = map[WorkStyle]map[WorkSignal]int{
	WorkStyleSolo:      {SignalSolo: 100, SignalTeam: 40, SignalOrganization: 20},
	WorkStyleSmallTeam: {SignalSolo: 50, SignalTeam: 100, SignalOrganization: 60},
	WorkStyleLargeTeam: {SignalSolo: 20, SignalTeam: 70, SignalOrganization: 100},
}

func (m *Matcher) workStyleAffinity(text string, profile *Profile) (int, bool) {
	scores, ok := workStyleScores[profile.WorkStyle]
	if !ok {
		return 0, false
	}

	best, found := 0, false
	for _, signal := range []WorkSignal{SignalSolo, SignalTeam, SignalOrganization} {
		if containsAny(text, m.tables.WorkStyleSignals[signal]) {
			best = max(best, scores[signal])
			found = true
		}
	}
	if !found {
		return NeutralScore, true
	}
	return best, true
}

func (m *Matcher) impactAffinity(text string, profile *Profile) (int, bool) {
	preferred := profile.ImpactPreference.Rank()
	if preferred == 0 {
		return 0, false
	}

	best, found := 0, false
	for _, scope := range []ImpactScope{ImpactPeer, ImpactSchool, ImpactCommunity, ImpactGlobal} {
		if containsAny(text, m.tables.ImpactSignals[scope]) {
			best = max(best, impactCredit(scope.Rank(), preferred))
			found = true
		}
	}
	if !found {
		return NeutralScore, true
	}
	return best, true
}

// impactCredit: совпадение 100; более широкий сигнал частично засчитывается
// более узкому предпочтению, более узкий - меньше.
func impactCredit(signal, preferred int) int {
	d := signal - preferred
	switch {
	case d == 0:
		return 100
	case d > 0:
		return max(40, 100-20*d)
	default:
		return max(10, 50-20*(-d))
	}
}

func clampScore(v float64) MatchScore {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return MatchScore(v)
	}
}
