// Package curriculum содержит доменную модель учебной программы:
// модули, активности, отметки о выполнении и прогресс по модулям.
//
// Пакет отвечает за машину состояний прохождения программы:
//
//   - ActivityCompletion - источник истины, журнал выполненных активностей
//   - ModuleProgress - материализованное представление, которое всегда
//     пересчитывается с нуля по журналу выполнений
//   - OverallProgress - средний процент по всем опубликованным модулям
//
// Доступ к модулю не хранится: модуль n открыт тогда и только тогда,
// когда модуль n-1 имеет статус COMPLETED. Первый модуль открыт всегда.
//
// Пакет не имеет внешних зависимостей и определяет интерфейсы
// репозиториев, которые реализуются в слое infrastructure.
package curriculum
