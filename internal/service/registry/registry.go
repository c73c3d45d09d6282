// Package registry 进程内模型注册表，按 (kind, name) 缓存已加载的模型并做引用计数
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// Kind 模型类型
type Kind string

const (
	KindEmbedding Kind = "embedding"
	KindReranker  Kind = "reranker"
)

// Loader 按名称加载模型
type Loader func(ctx context.Context, name string) (interface{}, error)

// ModelInfo 已加载模型的信息
type ModelInfo struct {
	Kind     Kind      `json:"kind"`
	Name     string    `json:"name"`
	Refs     int       `json:"refs"`
	LoadedAt time.Time `json:"loaded_at"`
}

type key struct {
	kind Kind
	name string
}

// loadCall 进行中的一次加载
type loadCall struct {
	done chan struct{}
	err  error
}

type entry struct {
	value    interface{}
	refs     int
	loadedAt time.Time
}

// Registry 模型注册表
// 推理期间持有的句柄不会被卸载，卸载请求在有引用时直接拒绝
type Registry struct {
	mu      sync.Mutex
	loaders map[Kind]Loader
	entries map[key]*entry
	loading map[key]*loadCall
}

// New 创建注册表
func New() *Registry {
	return &Registry{
		loaders: make(map[Kind]Loader),
		entries: make(map[key]*entry),
		loading: make(map[key]*loadCall),
	}
}

// Register 注册某类模型的加载器
func (r *Registry) Register(kind Kind, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[kind] = loader
}

// Acquire 获取模型句柄并增加引用，未加载时调用对应加载器
// 加载过程不持有注册表锁，同一模型的并发请求等待首个加载结果
func (r *Registry) Acquire(ctx context.Context, kind Kind, name string) (interface{}, error) {
	k := key{kind: kind, name: name}
	for {
		r.mu.Lock()
		if e, ok := r.entries[k]; ok {
			e.refs++
			r.mu.Unlock()
			return e.value, nil
		}

		if call, ok := r.loading[k]; ok {
			r.mu.Unlock()
			select {
			case <-call.done:
				if call.err != nil {
					return nil, call.err
				}
				// 加载完成后重新取缓存，期间被卸载时会再次加载
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		loader, ok := r.loaders[kind]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("no loader registered for %s models", kind)
		}
		call := &loadCall{done: make(chan struct{})}
		r.loading[k] = call
		r.mu.Unlock()

		value, err := loader(ctx, name)

		r.mu.Lock()
		delete(r.loading, k)
		if err != nil {
			call.err = fmt.Errorf("failed to load %s model %s: %w", kind, name, err)
		} else {
			r.entries[k] = &entry{value: value, refs: 1, loadedAt: time.Now()}
		}
		close(call.done)
		r.mu.Unlock()

		if call.err != nil {
			return nil, call.err
		}
		return value, nil
	}
}

// Release 释放一次引用
func (r *Registry) Release(kind Kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key{kind: kind, name: name}]; ok && e.refs > 0 {
		e.refs--
	}
}

// Evict 卸载单个模型，仍有引用时返回 ErrModelInUse
func (r *Registry) Evict(kind Kind, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{kind: kind, name: name}
	e, ok := r.entries[k]
	if !ok {
		return nil
	}
	if e.refs > 0 {
		return fmt.Errorf("%s model %s: %w", kind, name, types.ErrModelInUse)
	}
	closeValue(e.value)
	delete(r.entries, k)
	return nil
}

// EvictAll 卸载全部模型并返回数量；任一模型仍有引用时不卸载任何模型
func (r *Registry) EvictAll() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, e := range r.entries {
		if e.refs > 0 {
			return 0, fmt.Errorf("%s model %s: %w", k.kind, k.name, types.ErrModelInUse)
		}
	}

	n := len(r.entries)
	for k, e := range r.entries {
		closeValue(e.value)
		delete(r.entries, k)
	}
	return n, nil
}

// Loaded 列出已加载模型
func (r *Registry) Loaded() []ModelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ModelInfo, 0, len(r.entries))
	for k, e := range r.entries {
		out = append(out, ModelInfo{Kind: k.kind, Name: k.name, Refs: e.refs, LoadedAt: e.loadedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func closeValue(v interface{}) {
	if c, ok := v.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
