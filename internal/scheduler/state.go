package scheduler

// reachability remembers the last up/down state one loop observed so only
// first observations and flips are logged at info. Owned by a single loop
// goroutine.
type reachability struct {
	known bool
	up    bool
}

// observe records up and reports whether it differs from the previous
// observation (or is the first one).
func (r *reachability) observe(up bool) bool {
	changed := !r.known || r.up != up
	r.known, r.up = true, up
	return changed
}

func stateLabel(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
