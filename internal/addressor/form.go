package addressor

import (
	"sort"
	"sync"
)

// Field is a settable, clearable text input.
type Field interface {
	Set(value string)
	Clear()
}

// FormStore looks up form inputs by name.
type FormStore interface {
	Field(name string) (Field, bool)
}

// MemoryForm is a FormStore holding values in memory.
type MemoryForm struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryForm creates a form with the given inputs, all empty.
func NewMemoryForm(names ...string) *MemoryForm {
	f := &MemoryForm{values: make(map[string]string, len(names))}
	for _, name := range names {
		f.values[name] = ""
	}
	return f
}

// Field returns the named input if the form declares it.
func (f *MemoryForm) Field(name string) (Field, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.values[name]; !ok {
		return nil, false
	}
	return memoryField{form: f, name: name}, true
}

// Value returns the current value of name.
func (f *MemoryForm) Value(name string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

// Values returns a snapshot of every input.
func (f *MemoryForm) Values() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Names returns the declared input names, sorted.
func (f *MemoryForm) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Type sets the value of name as user input would. Unknown names are ignored.
func (f *MemoryForm) Type(name, value string) {
	f.set(name, value)
}

func (f *MemoryForm) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[name]; ok {
		f.values[name] = value
	}
}

type memoryField struct {
	form *MemoryForm
	name string
}

func (m memoryField) Set(value string) { m.form.set(m.name, value) }
func (m memoryField) Clear()           { m.form.set(m.name, "") }
