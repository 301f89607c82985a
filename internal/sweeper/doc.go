// Package sweeper удаляет истёкшие записи кэша результатов.
//
// Чтение кэша никогда не фильтрует по expires_at — устаревание
// обеспечивает sweeper, периодически вычищающий записи по расписанию.
// При нескольких экземплярах лидер выбирается advisory lock'ом.
package sweeper
