package learner

import (
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// User - счётчики наград студента. Идентичность принадлежит
// внешнему сервису аутентификации, здесь хранится только ID.
type User struct {
	// ID - идентификатор студента.
	ID string

	// XP - накопленный опыт, только растёт.
	XP shared.XP

	// Level - уровень, выводится из XP.
	Level shared.Level

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// LongestStreak - лучшая серия дней, не меньше CurrentStreak.
	LongestStreak int

	// LastActiveAt - время последней активности (nil до первой).
	LastActiveAt *time.Time

	// CreatedAt - время создания.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewUser создаёт студента с нулевыми счётчиками.
func NewUser(id string, now time.Time) (*User, error) {
	uid, err := shared.NewUserID(id)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:        uid.String(),
		XP:        shared.MinXP,
		Level:     shared.MinLevel,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// XPChange - результат начисления опыта.
type XPChange struct {
	Amount   int
	OldXP    shared.XP
	NewXP    shared.XP
	OldLevel shared.Level
	NewLevel shared.Level
}

// LeveledUp возвращает true, если уровень вырос.
func (c XPChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// AddXP начисляет опыт и пересчитывает уровень.
// Отрицательная сумма отклоняется до любых изменений.
// При touch = true обновляется LastActiveAt.
func (u *User) AddXP(amount int, now time.Time, touch bool) (XPChange, error) {
	newXP, err := u.XP.Add(amount)
	if err != nil {
		return XPChange{}, err
	}

	change := XPChange{
		Amount:   amount,
		OldXP:    u.XP,
		NewXP:    newXP,
		OldLevel: u.Level,
		NewLevel: CalculateLevel(newXP),
	}

	u.XP = newXP
	// Уровень не понижается, даже если в хранилище был записан больший.
	if change.NewLevel > u.Level {
		u.Level = change.NewLevel
	} else {
		change.NewLevel = u.Level
	}
	u.UpdatedAt = now
	if touch {
		u.touch(now)
	}
	return change, nil
}

// LevelProgress возвращает процент внутри текущего уровня.
func (u *User) LevelProgress() int {
	return LevelProgress(u.XP)
}

func (u *User) touch(now time.Time) {
	t := now
	u.LastActiveAt = &t
	u.UpdatedAt = now
}
