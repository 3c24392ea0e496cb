package learner

import "github.com/alem-hub/progress-engine/internal/domain/shared"

// LevelThresholds - минимальный XP для уровней 1..20.
// Таблица строго возрастает, уровень 1 начинается с 0 XP.
var LevelThresholds = [shared.MaxLevel]int{
	0,     // 1
	100,   // 2
	250,   // 3
	500,   // 4
	850,   // 5
	1300,  // 6
	1900,  // 7
	2600,  // 8
	3500,  // 9
	4600,  // 10
	5900,  // 11
	7400,  // 12
	9100,  // 13
	11000, // 14
	13200, // 15
	15700, // 16
	18500, // 17
	21600, // 18
	25000, // 19
	28700, // 20
}

// ThresholdFor возвращает минимальный XP для уровня.
func ThresholdFor(level shared.Level) int {
	switch {
	case level <= shared.MinLevel:
		return 0
	case level >= shared.MaxLevel:
		return LevelThresholds[len(LevelThresholds)-1]
	default:
		return LevelThresholds[level-1]
	}
}

// CalculateLevel возвращает наибольший уровень, порог которого не превышает xp.
func CalculateLevel(xp shared.XP) shared.Level {
	level := shared.MinLevel
	for i, threshold := range LevelThresholds {
		if xp.Int() < threshold {
			break
		}
		level = shared.Level(i + 1)
	}
	return level
}

// LevelProgress возвращает процент внутри текущего уровня (0-100, с округлением вниз).
// На максимальном уровне всегда 100.
func LevelProgress(xp shared.XP) int {
	level := CalculateLevel(xp)
	if level.IsMax() {
		return 100
	}

	lower := ThresholdFor(level)
	upper := ThresholdFor(level + 1)
	return (xp.Int() - lower) * 100 / (upper - lower)
}

// XPToNextLevel возвращает, сколько XP не хватает до следующего уровня.
func XPToNextLevel(xp shared.XP) int {
	level := CalculateLevel(xp)
	if level.IsMax() {
		return 0
	}
	return ThresholdFor(level+1) - xp.Int()
}
