package dedupe

func (c *Cache[K]) IsSeen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen(key, c.now())
}

func (c *Cache[K]) MarkSeen(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(key, c.now())
}

func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
