// Package learner содержит доменную модель наград студента:
// опыт (XP), уровни, серии активных дней и достижения.
//
// Основные элементы:
//
//   - User - счётчики XP, уровня и серий; меняются только движком наград
//   - LevelThresholds - фиксированная таблица порогов XP для 20 уровней
//   - Definition - каталог достижений с фиксированной наградой XP
//   - Achievement - факт получения достижения, не более одного на студента
//
// Все изменения счётчиков монотонны: XP только растёт, уровень выводится
// из XP, LongestStreak не меньше CurrentStreak.
//
// Пакет не имеет внешних зависимостей.
package learner
