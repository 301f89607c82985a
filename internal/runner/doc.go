// Package runner реализует планирующее ядро фреймворка задач.
//
// Структура:
//   - runner.go  — state machine одного вызова задачи (Process)
//   - outcome.go — исходы выполнения и терминальные Disposition
//   - worker.go  — потребитель очереди, передающий сообщения в Runner
//
// Один вызов Process — одна итерация цепочки (chain): дедупликация
// по cache key, гейт presence, разрешение конфликта sequences,
// выполнение доменной логики, учёт ошибок с backoff и
// самоперепланирование polling-задач.
//
// "Ожидание" выражается возвратом из Process и повторной доставкой
// сообщения через очередь с задержкой, а не блокировкой внутри процесса.
package runner
