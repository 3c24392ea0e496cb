package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMEND PROJECTS QUERY
// Ранжирует активные проекты по анкете студента. Без анкеты все проекты
// получают нейтральную оценку и сохраняют исходный порядок.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRecommendLimit - размер выдачи по умолчанию.
const DefaultRecommendLimit = 20

// RecommendProjectsQuery содержит параметры запроса рекомендаций.
type RecommendProjectsQuery struct {
	// UserID - студент, для которого строится выдача.
	UserID string

	// Category - только проекты категории (пусто - все).
	Category relevance.Category

	// ProjectIDs - оценить только указанные проекты.
	ProjectIDs []string

	// Limit - максимум проектов в ответе.
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *RecommendProjectsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Category != "" && !q.Category.IsValid() {
		return fmt.Errorf("unknown category %q", q.Category)
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	return nil
}

// FactorDTO - вклад одного фактора в оценку.
type FactorDTO struct {
	Factor string `json:"factor"`
	Score  int    `json:"score"`
}

// RecommendationDTO - проект с оценкой.
type RecommendationDTO struct {
	ProjectID   string      `json:"project_id"`
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	Score       int         `json:"score"`
	Quality     string      `json:"quality"`
	Factors     []FactorDTO `json:"factors,omitempty"`
	Description string      `json:"description,omitempty"`
}

// RecommendationsDTO - результат запроса.
type RecommendationsDTO struct {
	UserID string `json:"user_id"`

	// HasProfile - false, если анкета не заполнена и оценки нейтральные.
	HasProfile bool `json:"has_profile"`

	Projects []RecommendationDTO `json:"projects"`
}

// RecommendProjectsHandler обрабатывает RecommendProjectsQuery.
type RecommendProjectsHandler struct {
	profiles     relevance.ProfileReader
	projects     relevance.ProjectReader
	matcher      *relevance.Matcher
	defaultLimit int
	logger       *slog.Logger
}

// NewRecommendProjectsHandler создаёт RecommendProjectsHandler.
func NewRecommendProjectsHandler(
	profiles relevance.ProfileReader,
	projects relevance.ProjectReader,
	matcher *relevance.Matcher,
	defaultLimit int,
	logger *slog.Logger,
) *RecommendProjectsHandler {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRecommendLimit
	}
	return &RecommendProjectsHandler{
		profiles:     profiles,
		projects:     projects,
		matcher:      matcher,
		defaultLimit: defaultLimit,
		logger:       logger.With(slog.String("handler", "recommend_projects")),
	}
}

// Handle выполняет запрос.
func (h *RecommendProjectsHandler) Handle(ctx context.Context, q RecommendProjectsQuery) (*RecommendationsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("relevance", "Recommend", shared.ErrInvalidInput, "invalid query", err)
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}

	profile, err := h.profiles.GetProfile(ctx, q.UserID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		profile = nil
	case err != nil:
		return nil, fmt.Errorf("recommend_projects: profile: %w", err)
	}

	// Оцениваем все кандидаты и только потом обрезаем выдачу.
	candidates, err := h.projects.ListProjects(ctx, relevance.ProjectFilter{
		Category: q.Category,
		IDs:      q.ProjectIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("recommend_projects: projects: %w", err)
	}

	ranked := h.matcher.Rank(candidates, profile)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	dto := &RecommendationsDTO{
		UserID:     q.UserID,
		HasProfile: profile != nil,
		Projects:   make([]RecommendationDTO, 0, len(ranked)),
	}
	for _, r := range ranked {
		item := RecommendationDTO{
			ProjectID:   r.Project.ID,
			Title:       r.Project.Title,
			Category:    string(r.Project.Category),
			Score:       r.Assessment.Score.Int(),
			Quality:     string(r.Assessment.Score.Quality()),
			Description: r.Project.Description,
		}
		for _, reason := range r.Assessment.Reasons {
			item.Factors = append(item.Factors, FactorDTO{Factor: string(reason.Factor), Score: reason.Score})
		}
		dto.Projects = append(dto.Projects, item)
	}

	h.logger.DebugContext(ctx, "projects ranked",
		slog.String("user_id", q.UserID),
		slog.Bool("has_profile", dto.HasProfile),
		slog.Int("candidates", len(candidates)),
		slog.Int("returned", len(dto.Projects)),
	)

	return dto, nil
}
