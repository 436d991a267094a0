package block

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry каталог ассетов блоков. Выдаёт каждому имени постоянный идентификатор
// на время жизни процесса. Безопасен для конкурентного использования.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Asset
	byID   map[AssetID]Asset
	nextID AssetID
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Asset),
		byID:   make(map[AssetID]Asset),
		nextID: NoAsset + 1,
	}
}

// Register добавляет ассет с указанным именем или возвращает уже зарегистрированный
func (r *Registry) Register(name string) (Asset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Asset{}, fmt.Errorf("block: empty asset name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.byName[name]; ok {
		return a, nil
	}
	a := Asset{ID: r.nextID, Name: name}
	r.nextID++
	r.byName[name] = a
	r.byID[a.ID] = a
	return a, nil
}

// RegisterAll регистрирует набор имён
func (r *Registry) RegisterAll(names []string) error {
	for _, name := range names {
		if _, err := r.Register(name); err != nil {
			return err
		}
	}
	return nil
}

// Get возвращает ассет по имени
func (r *Registry) Get(name string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// ByID возвращает ассет по идентификатору
func (r *Registry) ByID(id AssetID) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// IsValid проверяет, что ассет выдан этим реестром
func (r *Registry) IsValid(a Asset) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	got, ok := r.byID[a.ID]
	return ok && got == a
}

// Names возвращает отсортированный список зарегистрированных имён
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// catalog формат файла каталога блоков
type catalog struct {
	Blocks []string `yaml:"blocks"`
}

// LoadFile регистрирует ассеты из YAML-файла вида:
//
//	blocks:
//	  - hull_steel
//	  - window_glass
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("block: read catalog %s: %w", path, err)
	}
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("block: parse catalog %s: %w", path, err)
	}
	return r.RegisterAll(c.Blocks)
}
