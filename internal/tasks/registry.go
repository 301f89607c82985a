package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// Имена задач в реестре. Имя задачи — это и routing key,
// под которым результат доставляется слушателям пользователя.
const (
	TaskListMachines  = "list_machines"
	TaskListImages    = "list_images"
	TaskListSizes     = "list_sizes"
	TaskListLocations = "list_locations"
	TaskProbe         = "probe"
	TaskPing          = "ping"
)

// ErrUnknownTask — задачи с таким именем нет в реестре.
var ErrUnknownTask = errors.New("unknown task")

// Definition — определение задачи.
//
// Методы окон и polling вызываются Task Runner'ом на каждом шаге
// state machine; Execute — единственный медленный и падающий вызов.
type Definition interface {
	// Name возвращает имя задачи в реестре.
	Name() string

	// ResultFresh — окно, в течение которого кэшированный результат
	// считается свежим: внешний триггер при свежем результате не
	// выполняется, а polling-задача перезапускается с этим периодом.
	ResultFresh() time.Duration

	// ResultExpires — окно, после которого кэшированный результат
	// нельзя возвращать вовсе.
	ResultExpires() time.Duration

	// Polling — перезапускается ли задача после каждого успеха,
	// пока пользователь слушает.
	Polling() bool

	// Execute выполняет доменную логику и возвращает payload результата.
	Execute(ctx context.Context, call domain.Call) (any, error)

	// ErrorRerun — backoff-политика задачи.
	//
	// offsets — моменты подряд идущих ошибок как смещения от первой.
	// Возвращает задержку перед повтором или ok=false — give-up.
	// Политике разрешены side effects (см. ListMachines).
	ErrorRerun(ctx context.Context, offsets []time.Duration, call domain.Call) (time.Duration, bool)
}

// DefaultErrorRerun — backoff по умолчанию: 30с, 120с, 10м, затем give-up.
func DefaultErrorRerun(offsets []time.Duration) (time.Duration, bool) {
	switch len(offsets) {
	case 1:
		return 30 * time.Second, true
	case 2:
		return 120 * time.Second, true
	case 3:
		return 10 * time.Minute, true
	}
	return 0, false
}

// Base — общая часть определений задач: имя, окна, флаг polling
// и backoff по умолчанию. Встраивается в конкретные задачи.
type Base struct {
	TaskName string
	Fresh    time.Duration
	Expires  time.Duration
	Poll     bool
}

func (b Base) Name() string                 { return b.TaskName }
func (b Base) ResultFresh() time.Duration   { return b.Fresh }
func (b Base) ResultExpires() time.Duration { return b.Expires }
func (b Base) Polling() bool                { return b.Poll }

// ErrorRerun — backoff по умолчанию. Задачи переопределяют при необходимости.
func (b Base) ErrorRerun(_ context.Context, offsets []time.Duration, _ domain.Call) (time.Duration, bool) {
	return DefaultErrorRerun(offsets)
}

// Registry — статический реестр задач по имени.
type Registry struct {
	definitions map[string]Definition
}

// Config — зависимости для регистрации задач по умолчанию.
type Config struct {
	Inventory Inventory
	Backends  Backends
	Prober    Prober
	Pinger    Pinger
	Logger    *slog.Logger
}

// NewRegistry создаёт реестр со всеми задачами по умолчанию.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{definitions: make(map[string]Definition)}
	r.Register(NewListMachines(cfg.Inventory, cfg.Backends, logger))
	r.Register(NewListImages(cfg.Inventory))
	r.Register(NewListSizes(cfg.Inventory))
	r.Register(NewListLocations(cfg.Inventory))
	r.Register(NewProbeSSH(cfg.Prober))
	r.Register(NewPing(cfg.Pinger))
	return r
}

// Register добавляет определение задачи.
func (r *Registry) Register(def Definition) {
	r.definitions[def.Name()] = def
}

// Get возвращает определение по имени.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return def, nil
}

// List возвращает все зарегистрированные определения.
func (r *Registry) List() []Definition {
	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	return defs
}
