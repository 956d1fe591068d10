package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量，必须大于0。
	Capacity int
	// TTL 是元素自上次写入后的存活时间。如果为0，则元素永不过期。
	TTL time.Duration
	// Now 返回当前时间，为空时使用 time.Now。
	Now func() time.Time
}

// entry 结构体用于存储链表节点中的实际数据。
type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache 是一个支持泛型、按容量淘汰并支持TTL的线程安全LRU缓存。
type LRUCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	lock  sync.Mutex
	ll    *list.List
	cache map[K]*list.Element
}

// NewLRU 使用指定的配置创建一个LRU缓存实例。
func NewLRU[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("LRU 容量必须大于0，当前为 %d", config.Capacity)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &LRUCache[K, V]{
		capacity: config.Capacity,
		ttl:      config.TTL,
		now:      now,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Get 方法根据键获取一个值。已过期的元素会被移除并视为不存在。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put 方法向缓存中添加或更新一个键值对，并刷新其TTL。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.put(key, value)
}

// GetOrCreate 返回键对应的值，不存在或已过期时用 create 创建并写入。
// 每次调用都会刷新TTL，因此持续被访问的元素不会过期。
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) V {
	c.lock.Lock()
	defer c.lock.Unlock()

	var value V
	if e, ok := c.lookup(key); ok {
		value = e.value
	} else {
		value = create()
	}
	c.put(key, value)
	return value
}

// Len 返回当前缓存中的条目数量（可能包含尚未被动淘汰的过期元素）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// lookup 查找未过期的元素并标记为最近使用。此方法假设已持有锁。
func (c *LRUCache[K, V]) lookup(key K) (*entry[K, V], bool) {
	element, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	e := element.Value.(*entry[K, V])
	if c.ttl > 0 && c.now().After(e.expiration) {
		// 已过期，从缓存中移除
		c.removeElement(element)
		return nil, false
	}
	c.ll.MoveToFront(element)
	return e, true
}

// put 写入元素并在超出容量时淘汰最久未使用的元素。此方法假设已持有锁。
func (c *LRUCache[K, V]) put(key K, value V) {
	var expiration time.Time
	if c.ttl > 0 {
		expiration = c.now().Add(c.ttl)
	}

	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
		return
	}

	c.cache[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: expiration})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
}

// removeElement 是一个内部辅助函数，用于从链表和map中移除元素。
// 此方法假设已持有锁。
func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.cache, e.Value.(*entry[K, V]).key)
}
