package relevance

import (
	"context"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT
// ══════════════════════════════════════════════════════════════════════════════

// Category - категория проекта.
type Category string

const (
	CategoryTechnical       Category = "TECHNICAL"
	CategoryCreative        Category = "CREATIVE"
	CategoryEntrepreneurial Category = "ENTREPRENEURIAL"
	CategoryScientific      Category = "SCIENTIFIC"
	CategorySocialImpact    Category = "SOCIAL_IMPACT"
	CategoryEnvironmental   Category = "ENVIRONMENTAL"
)

// IsValid проверяет, что категория известна.
func (c Category) IsValid() bool {
	switch c {
	case CategoryTechnical, CategoryCreative, CategoryEntrepreneurial,
		CategoryScientific, CategorySocialImpact, CategoryEnvironmental:
		return true
	}
	return false
}

// Project - проект-кандидат для рекомендации.
type Project struct {
	// ID - идентификатор проекта.
	ID string

	// Title - название.
	Title string

	// Description - свободный текст описания.
	Description string

	// Category - категория.
	Category Category
}

// Text возвращает название и описание одной строкой.
func (p Project) Text() string {
	return p.Title + " " + p.Description
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// WorkStyle - предпочитаемый формат работы.
type WorkStyle string

const (
	WorkStyleSolo      WorkStyle = "solo"
	WorkStyleSmallTeam WorkStyle = "small-team"
	WorkStyleLargeTeam WorkStyle = "large-team"
)

// ImpactScope - масштаб влияния проекта.
type ImpactScope string

const (
	ImpactPeer      ImpactScope = "peer"
	ImpactSchool    ImpactScope = "school"
	ImpactCommunity ImpactScope = "community"
	ImpactGlobal    ImpactScope = "global"
)

// Rank возвращает порядок масштаба: peer < school < community < global.
// Для неизвестного значения возвращает 0.
func (s ImpactScope) Rank() int {
	switch s {
	case ImpactPeer:
		return 1
	case ImpactSchool:
		return 2
	case ImpactCommunity:
		return 3
	case ImpactGlobal:
		return 4
	}
	return 0
}

// Profile - снимок анкеты студента. Только читается.
type Profile struct {
	// UserID - идентификатор студента.
	UserID string

	// GradeLevel - класс или курс.
	GradeLevel string

	// FavoriteSubjects - любимые предметы.
	FavoriteSubjects []string

	// CurrentActivities - текущие занятия и кружки.
	CurrentActivities []string

	// WorkStyle - формат работы (может быть пустым).
	WorkStyle WorkStyle

	// ImpactPreference - желаемый масштаб (может быть пустым).
	ImpactPreference ImpactScope

	// ChallengeLevel - желаемая сложность 1-10, 0 если не указана.
	ChallengeLevel int

	// TopValues - производные ценности.
	TopValues []string

	// TopStrengths - производные сильные стороны.
	TopStrengths []string

	// CareerClusters - производные профессиональные кластеры.
	CareerClusters []string
}

// Interests возвращает предметы и занятия в нижнем регистре без пустых.
func (p *Profile) Interests() []string {
	out := make([]string, 0, len(p.FavoriteSubjects)+len(p.CurrentActivities))
	for _, list := range [][]string{p.FavoriteSubjects, p.CurrentActivities} {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// HasChallengeLevel возвращает true, если сложность указана в диапазоне 1-10.
func (p *Profile) HasChallengeLevel() bool {
	return p.ChallengeLevel >= 1 && p.ChallengeLevel <= 10
}

// ══════════════════════════════════════════════════════════════════════════════
// READERS
// ══════════════════════════════════════════════════════════════════════════════

// ProfileReader читает профиль студента.
// Возвращает shared.ErrProfileNotFound, если анкета не заполнена.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// ProjectFilter - параметры выборки проектов.
type ProjectFilter struct {
	// Category - только проекты категории (пусто - все).
	Category Category

	// IDs - только указанные проекты (пусто - все).
	IDs []string

	// Limit - максимум записей (0 - без ограничения).
	Limit int
}

// ProjectReader читает проекты-кандидаты.
type ProjectReader interface {
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
}
