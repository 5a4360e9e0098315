package vm

// Incremental tri-color mark/sweep.
//
// The invariant: a black object never references a white object directly.
// Mutators uphold it by calling WriteBarrier on every container they store a
// reference into (a backward barrier: the black container is re-grayed and
// re-traced). Threads are exempt from barriers on stack pushes; instead a
// reached thread parks on the gray-again list and is re-traced in one atomic
// step when the gray stack drains, just before sweeping begins.

// WriteBarrier notifies the collector that container may now reference an
// unmarked object. Must be called by any component that stores a tracked
// reference inside an already-tracked object.
func (h *Heap) WriteBarrier(container Object) {
	if h.phase == phaseMark && container.header().color == gcBlack {
		container.header().color = gcGray
		h.gray = append(h.gray, container)
	}
}

// markValue grays the value's heap object, if it has one.
func (h *Heap) markValue(v Value) {
	if v.obj != nil {
		h.markObject(v.obj)
	}
}

// markObject grays a white object. Strings are leaves and blacken
// immediately; threads park on the gray-again list.
func (h *Heap) markObject(o Object) {
	hdr := o.header()
	if hdr.color != gcWhite {
		return
	}
	switch o.(type) {
	case *String:
		hdr.color = gcBlack
	case *Thread:
		hdr.color = gcGray
		h.grayAgain = append(h.grayAgain, o)
	default:
		hdr.color = gcGray
		h.gray = append(h.gray, o)
	}
}

// Collect performs up to work units of incremental collection and reports
// whether a full cycle completed. One work unit is roughly one object
// traced or a few objects swept.
func (h *Heap) Collect(work int) bool {
	if h.fatal != nil {
		return false
	}
	for work > 0 {
		switch h.phase {
		case phaseIdle:
			h.startCycle()
			work--
		case phaseMark:
			work -= h.markStep(work)
		case phaseSweep:
			work -= h.sweepStep(work)
			if h.phase == phaseIdle {
				return true
			}
		}
	}
	return false
}

// FullCollect runs collection to the end of a complete cycle. If a cycle is
// already in progress it is finished and one more full cycle is run, so that
// everything unreachable at the time of the call is reclaimed.
func (h *Heap) FullCollect() {
	if h.fatal != nil {
		return
	}
	if h.phase != phaseIdle {
		for !h.Collect(1 << 16) {
		}
	}
	for !h.Collect(1 << 16) {
	}
}

// startCycle grays all roots and enters the mark phase.
func (h *Heap) startCycle() {
	h.phase = phaseMark
	h.gray = h.gray[:0]
	h.grayAgain = h.grayAgain[:0]

	for _, r := range h.roots {
		r.TraceRoots(h)
	}
	for o := range h.pins {
		h.markObject(o)
	}
	for _, vals := range h.protoConsts {
		for _, v := range vals {
			h.markValue(v)
		}
	}
	for _, s := range h.mmNames {
		h.markObject(s)
	}
}

// markStep traces up to work gray objects, returning the units consumed.
// When the gray stack drains it performs the atomic re-trace of threads and
// roots and moves to the sweep phase.
func (h *Heap) markStep(work int) int {
	spent := 0
	for spent < work {
		n := len(h.gray)
		if n == 0 {
			h.atomicStep()
			return spent + 1
		}
		o := h.gray[n-1]
		h.gray = h.gray[:n-1]
		if o.header().color == gcGray {
			o.header().color = gcBlack
			o.trace(h)
		}
		spent++
	}
	return spent
}

// atomicStep runs the non-incremental end of marking: threads (which mutate
// without barriers) and roots are re-traced, the gray stack is drained to
// empty, and sweeping begins.
func (h *Heap) atomicStep() {
	for _, r := range h.roots {
		r.TraceRoots(h)
	}
	for o := range h.pins {
		h.markObject(o)
	}
	for {
		// threads reached so far, including ones found while draining
		again := h.grayAgain
		h.grayAgain = nil
		for _, o := range again {
			if o.header().color == gcGray {
				o.header().color = gcBlack
				o.trace(h)
			}
		}
		for len(h.gray) > 0 {
			n := len(h.gray)
			o := h.gray[n-1]
			h.gray = h.gray[:n-1]
			if o.header().color == gcGray {
				o.header().color = gcBlack
				o.trace(h)
			}
		}
		if len(h.grayAgain) == 0 {
			break
		}
	}

	h.phase = phaseSweep
	h.sweepPrev = nil
	h.sweepCur = h.all
	h.swept = 0
}

// sweepStep reclaims up to work objects, returning the units consumed. At
// the end of the list the cycle completes and tuning is recomputed.
func (h *Heap) sweepStep(work int) int {
	spent := 0
	for spent < work {
		o := h.sweepCur
		if o == nil {
			h.finishCycle()
			return spent + 1
		}
		hdr := o.header()
		next := hdr.next
		if hdr.color == gcWhite {
			// unreachable: unlink and release
			if h.sweepPrev == nil {
				h.all = next
			} else {
				h.sweepPrev.header().next = next
			}
			hdr.next = nil
			if s, ok := o.(*String); ok {
				delete(h.interns, s.s)
			}
			h.objCount--
			h.swept++
		} else {
			hdr.color = gcWhite
			h.sweepPrev = o
		}
		h.sweepCur = next
		spent++
	}
	return spent
}

func (h *Heap) finishCycle() {
	h.phase = phaseIdle
	h.sweepPrev = nil
	h.sweepCur = nil
	h.cycles++

	h.threshold = h.objCount * h.cfg.PausePercent / 100
	if h.threshold < 1024 {
		h.threshold = 1024
	}

	h.log.Debug().
		Uint64("cycle", h.cycles).
		Uint64("swept", h.swept).
		Int("live", h.objCount).
		Int("next_threshold", h.threshold).
		Msg("gc cycle complete")
}

// alive reports whether the object is still linked into the heap. Intended
// for tests; linear in heap size.
func (h *Heap) alive(o Object) bool {
	for cur := h.all; cur != nil; cur = cur.header().next {
		if cur == o {
			return true
		}
	}
	return false
}
