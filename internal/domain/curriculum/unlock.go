package curriculum

import "sort"

// IsUnlocked решает, открыт ли модуль с порядковым номером orderIndex.
// previous - прогресс по модулю orderIndex-1 (nil, если записи нет).
func IsUnlocked(orderIndex int, previous *ModuleProgress) bool {
	if orderIndex <= 1 {
		return true
	}
	return previous.IsCompleted()
}

// NextActivity возвращает первую по OrderIndex невыполненную активность.
// Возвращает nil, если выполнены все.
func NextActivity(activities []*Activity, completed map[ActivityID]bool) *Activity {
	ordered := SortActivities(activities)
	for _, a := range ordered {
		if !completed[a.ID] {
			return a
		}
	}
	return nil
}

// SortActivities возвращает копию списка, упорядоченную по OrderIndex.
func SortActivities(activities []*Activity) []*Activity {
	ordered := make([]*Activity, len(activities))
	copy(ordered, activities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})
	return ordered
}

// RequiredActivities возвращает только обязательные активности.
func RequiredActivities(activities []*Activity) []*Activity {
	required := make([]*Activity, 0, len(activities))
	for _, a := range activities {
		if a.RequiredForCompletion {
			required = append(required, a)
		}
	}
	return required
}

// CountCompleted считает, сколько активностей из списка выполнено.
func CountCompleted(activities []*Activity, completed map[ActivityID]bool) int {
	n := 0
	for _, a := range activities {
		if completed[a.ID] {
			n++
		}
	}
	return n
}
