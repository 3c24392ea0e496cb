// Package relevance содержит детерминированную функцию оценки проекта
// относительно профиля студента (0-100) и сортировку по ней.
//
// Оценка - среднее из четырёх факторов: интересы, сложность, формат работы
// и масштаб влияния. Фактор без сигнала в профиле не учитывается,
// поэтому пустые поля профиля не снижают оценку. Без профиля оценка 50.
//
// Списки ключевых слов - настраиваемые данные (KeywordTables),
// а не часть контракта.
package relevance
