package domain

// KwargSeqID — зарезервированный kwarg, несущий seq_id цепочки перезапусков.
// Не входит в идентичность задачи: вырезается перед построением cache key.
const KwargSeqID = "seq_id"

// Call — аргументы одного вызова задачи.
//
// Идентичность задачи = (имя задачи, User, Args, Kwargs без seq_id).
// Два вызова со структурно равной идентичностью всегда попадают
// в одну и ту же запись кэша.
type Call struct {
	// User — идентификатор пользователя (email), для которого выполняется задача.
	User string `json:"user"`

	// Args — позиционные аргументы задачи.
	Args []string `json:"args,omitempty"`

	// Kwargs — именованные аргументы. Может содержать зарезервированный seq_id.
	Kwargs map[string]string `json:"kwargs,omitempty"`
}

// SeqID возвращает seq_id цепочки из kwargs.
// Пустая строка — вызов внешний (не перезапуск).
func (c Call) SeqID() string {
	return c.Kwargs[KwargSeqID]
}

// WithSeqID возвращает копию Call с установленным seq_id.
// Исходный Call не изменяется.
func (c Call) WithSeqID(seqID string) Call {
	kwargs := make(map[string]string, len(c.Kwargs)+1)
	for k, v := range c.Kwargs {
		kwargs[k] = v
	}
	kwargs[KwargSeqID] = seqID
	c.Kwargs = kwargs
	return c
}

// StripSeqID возвращает копию Call без seq_id в kwargs.
// Используется при построении cache key.
func (c Call) StripSeqID() Call {
	if _, ok := c.Kwargs[KwargSeqID]; !ok {
		return c
	}
	kwargs := make(map[string]string, len(c.Kwargs))
	for k, v := range c.Kwargs {
		if k != KwargSeqID {
			kwargs[k] = v
		}
	}
	c.Kwargs = kwargs
	return c
}

// Arg возвращает позиционный аргумент по индексу или пустую строку.
func (c Call) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
