// Package cli реализует инструмент командной строки Mist.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Mist API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для запуска задач, работы с кэшем результатов,
// просмотра backend'ов и инвентаря, запуска deployment-скриптов.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Mist API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListTasks()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: mist task list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: list, trigger, result, clear
//   - backend: list, enable, disable, machines, images, sizes, locations
//   - deploy: run
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
