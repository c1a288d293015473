package repositories

import (
	"sync"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
)

// changeFeed 是进程内的变更扇出；回调在写入方 goroutine 中同步执行，不得阻塞。
type changeFeed struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(po.ChangeEvent)
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[int]func(po.ChangeEvent))}
}

// Subscribe 注册监听器并返回取消函数，取消函数可重复调用。
func (f *changeFeed) Subscribe(fn func(po.ChangeEvent)) func() {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *changeFeed) publish(evt po.ChangeEvent) {
	f.mu.RLock()
	subs := make([]func(po.ChangeEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
}
