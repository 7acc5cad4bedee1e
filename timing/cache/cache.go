package cache

import (
	"fmt"

	"github.com/sarchlab/rv5sim/isa"
)

// invariant aborts the simulation when the cache observes a state its FSM
// should never reach, per spec section 7's "simulator-detected impossible
// states assert and abort."
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("cache: invariant violated: "+format, args...))
	}
}

// Config describes one cache's geometry, per spec section 3: address =
// tag ‖ set ‖ line_index, with widths derived from these parameters.
type Config struct {
	NumSets   int
	NumWays   int
	LineWidth int // bytes
	AddrWidth int // paddr_width, bits
}

func (c Config) lineIndexBits() uint { return log2(c.LineWidth) }
func (c Config) setBits() uint       { return log2(c.NumSets) }

func log2(n int) uint {
	var bits uint
	for (1 << bits) < n {
		bits++
	}
	return bits
}

// decompose splits addr into (tag, setID, lineOffset) per the cache's
// geometry.
func (c Config) decompose(addr uint64) (tag uint64, setID int, lineOffset int) {
	lineBits := c.lineIndexBits()
	setBitsN := c.setBits()

	lineOffset = int(addr & ((1 << lineBits) - 1))
	setID = int((addr >> lineBits) & ((1 << setBitsN) - 1))
	tag = addr >> (lineBits + setBitsN)
	return
}

func (c Config) blockAddr(tag uint64, setID int) uint64 {
	lineBits := c.lineIndexBits()
	setBitsN := c.setBits()
	return (tag << (lineBits + setBitsN)) | (uint64(setID) << lineBits)
}

// Request is one cycle's cache access request, per spec section 4.1's
// contract {valid, addr, rtype, read}.
type Request struct {
	Valid      bool
	Addr       uint64
	AccessType isa.AccessType
	IsWrite    bool
	WriteData  uint64
}

// Response is what the cache presents out of its S2 stage this cycle.
type Response struct {
	Valid bool
	Data  uint64
}

type fsmState int

const (
	fsmIdle fsmState = iota
	fsmEvict
	fsmRead
	fsmUpdate
)

type stageEntry struct {
	valid      bool
	addr       uint64
	accessType isa.AccessType
	isWrite    bool
	writeData  uint64
}

// Cache is the 3-stage pipelined set-associative cache described in spec
// section 4.1: S0 presents the address to the meta/data arrays, S1
// registers the hit/way decision and raw line, S2 registers the aligned
// result. A miss suspends the pipeline in its state machine until the
// refill (and, if needed, the write-back eviction it precedes) completes.
type Cache struct {
	cfg     Config
	meta    *MetaArray
	data    *DataArray
	aligner *Aligner
	port    MemoryPort

	s1 stageEntry
	s2 stageEntry
	// s2Resp is the output already computed for whatever sits in s2 (the
	// write, if any, has already happened); repeated while cpuStall holds
	// the pipeline so a downstream-stall replay never re-applies a store.
	s2Resp Response
	// s2Hit/s2Way hold the S0 lookup's outcome for the request now sitting
	// in s1, consumed when it shifts into s2.
	s2Hit bool
	s2Way int

	state      fsmState
	evictWay   int
	evictSetID int
	evictTag   uint64
	evictData  []byte
	missTag    uint64
	missSetID  int
	// missReq is the original S1 request that triggered the miss; held so
	// that once the refill completes, the same access can be replayed
	// against the freshly installed line.
	missReq stageEntry

	// accessIssued tracks an in-flight Access call: true from the cycle its
	// request is first presented until the cycle its own response, not a
	// stale predecessor's, is finally read out.
	accessIssued bool

	stats Stats
}

// Stats holds cache-level counters, surfaced through Pipeline.Stats().
type Stats struct {
	Accesses  uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New constructs a cache with the given geometry, backed by port for
// refills and write-back evictions.
func New(cfg Config, port MemoryPort) *Cache {
	return &Cache{
		cfg:     cfg,
		meta:    NewMetaArray(cfg.NumSets, cfg.NumWays, cfg.LineWidth),
		data:    NewDataArray(cfg.NumSets, cfg.NumWays, cfg.LineWidth),
		aligner: NewAligner(),
		port:    port,
	}
}

// Step advances the cache by one cycle. req is the address the caller
// wishes to present this cycle (S0 input). cpuStall is the downstream
// consumer's freeze signal (spec section 4.1's cpu_stall input): while
// asserted, the internal S0/S1/S2 pipeline holds in place (no new request
// accepted, no shift between stages) even though the round-robin eviction
// counter still advances every cycle. If the cache is currently servicing
// a miss (state != idle), the caller's request is expected to be held
// stable regardless of cpuStall. MissStall must be read by the caller
// before issuing the next request.
func (c *Cache) Step(req Request, cpuStall bool) (resp Response, missStall bool) {
	c.meta.Tick()

	if cpuStall && c.state == fsmIdle {
		return c.s2Resp, false
	}

	// This cycle's output reflects whatever was already resolved for s2
	// last cycle, before the shift below replaces it.
	resp = c.s2Resp

	stalling := c.state != fsmIdle
	if stalling {
		missStall = true
		out, advanced := c.stepFSM()
		if advanced {
			if cpuStall {
				// Hold the pipeline: the refilled request waits in s1 as a hit.
				c.s1 = c.missReq
				c.s2Hit, c.s2Way = true, c.evictWay
				c.s2Resp = resp
				return resp, false
			}
			c.s2 = c.missReq
			c.s2Resp = out
			c.s1 = c.present(req)
			return resp, false
		}
		return Response{}, true
	}

	// S1 -> S2 shift: the previous cycle's S1 request becomes this cycle's
	// S2, its hit/way decision already resolved.
	if c.s1.valid {
		if !c.s2Hit {
			// The S1 lookup that just landed missed: enter the miss state
			// machine instead of shifting to S2 as a normal hit.
			c.beginMiss(c.s1)
			missStall = true
			c.s1 = stageEntry{}
			return Response{}, true
		}
		c.s2 = c.s1
		c.s2Resp = c.outputFor(c.s2)
	} else {
		c.s2 = stageEntry{}
		c.s2Resp = Response{}
	}

	// S0 -> S1: present the incoming request to the arrays.
	c.s1 = c.present(req)

	return resp, false
}

// present runs the S0 lookup combinationally and returns the entry to
// register into S1, recording the hit/way decision for next cycle's shift.
func (c *Cache) present(req Request) stageEntry {
	if !req.Valid {
		c.s2Hit = false
		return stageEntry{}
	}

	c.stats.Accesses++
	tag, setID, _ := c.cfg.decompose(req.Addr)
	lookup := c.meta.Lookup(setID, tag)

	if lookup.Hit {
		c.stats.Hits++
		c.s2Hit = true
		c.s2Way = lookup.Way
	} else {
		c.stats.Misses++
		c.s2Hit = false
	}

	return stageEntry{
		valid:      true,
		addr:       req.Addr,
		accessType: req.AccessType,
		isWrite:    req.IsWrite,
		writeData:  req.WriteData,
	}
}

// outputFor computes S2's aligned response for a confirmed hit entry.
func (c *Cache) outputFor(e stageEntry) Response {
	_, setID, lineOffset := c.cfg.decompose(e.addr)

	if e.isWrite {
		nbytes := accessBytes(e.accessType)
		c.data.WriteLane(setID, c.s2Way, lineOffset, e.writeData, nbytes)
		c.meta.MarkDirty(setID, c.s2Way)
		return Response{Valid: true}
	}

	line := c.data.Read(setID, c.s2Way)
	data := c.aligner.Extract(line, lineOffset, e.accessType)
	return Response{Valid: true, Data: data}
}

// beginMiss latches the evict way and current line, then selects the next
// FSM state per spec section 4.1's "idle" transition.
func (c *Cache) beginMiss(e stageEntry) {
	tag, setID, _ := c.cfg.decompose(e.addr)
	lookup := c.meta.Lookup(setID, tag)

	c.missTag = tag
	c.missSetID = setID
	c.evictWay = lookup.EvictWay
	c.evictSetID = setID
	c.evictTag = lookup.EvictTag
	c.evictData = append([]byte(nil), c.data.Read(setID, lookup.EvictWay)...)

	c.missReq = e
	if lookup.EvictValid && lookup.EvictDirty {
		c.state = fsmEvict
	} else {
		c.state = fsmRead
	}
}

func (c *Cache) stepFSM() (Response, bool) {
	switch c.state {
	case fsmEvict:
		evictAddr := c.cfg.blockAddr(c.evictTag, c.evictSetID)
		_, writeReady, _ := c.port.Step(ReadRequest{}, WriteRequest{Valid: true, Addr: evictAddr, Data: c.evictData})
		if writeReady {
			c.stats.Evictions++
			c.state = fsmRead
		}
		return Response{}, false

	case fsmRead:
		readAddr := c.cfg.blockAddr(c.missTag, c.missSetID)
		readReady, _, _ := c.port.Step(ReadRequest{Valid: true, Addr: readAddr}, WriteRequest{})
		if readReady {
			c.state = fsmUpdate
		}
		return Response{}, false

	case fsmUpdate:
		invariant(c.missReq.valid, "fsm in update with no pending request")
		readAddr := c.cfg.blockAddr(c.missTag, c.missSetID)
		_, _, resp := c.port.Step(ReadRequest{Valid: true, Addr: readAddr}, WriteRequest{})
		if !resp.Valid {
			return Response{}, false
		}

		c.data.Write(c.missSetID, c.evictWay, resp.Data)
		c.meta.Install(c.missSetID, c.evictWay, c.missTag)

		_, _, lineOffset := c.cfg.decompose(c.missReq.addr)

		var out Response
		if c.missReq.isWrite {
			nbytes := accessBytes(c.missReq.accessType)
			c.data.WriteLane(c.missSetID, c.evictWay, lineOffset, c.missReq.writeData, nbytes)
			c.meta.MarkDirty(c.missSetID, c.evictWay)
			out = Response{Valid: true}
		} else {
			line := c.data.Read(c.missSetID, c.evictWay)
			out = Response{Valid: true, Data: c.aligner.Extract(line, lineOffset, c.missReq.accessType)}
		}

		c.state = fsmIdle
		c.s1 = stageEntry{}
		c.s2 = stageEntry{}
		c.s2Resp = Response{}
		return out, true
	}

	invariant(false, "stepFSM invoked with state %d outside {evict,read,update}", c.state)
	return Response{}, false
}

// Access is a convenience entry point for a single, non-pipelining
// requester — the MEM stage issues one request at a time and waits, unlike
// the fetch frontend, which continuously presents a new address every
// cycle and reads Step directly. Step's contract assumes the latter: its
// return value lags whatever a caller presents by the S0/S1/S2 fill, so a
// caller that holds the same request across cycles must not mistake a
// stale predecessor's response for its own. Access hides that bookkeeping:
// it re-presents req only on the cycle it first arrives, then lets it
// drain through S1 and S2 on its own before reporting the result.
func (c *Cache) Access(req Request) (resp Response, busy bool) {
	if !req.Valid {
		c.Step(Request{}, false)
		return Response{}, false
	}

	if !c.accessIssued {
		c.accessIssued = true
		c.Step(req, false)
		return Response{}, true
	}

	resp, missStall := c.Step(Request{}, false)
	if missStall || !resp.Valid {
		return Response{}, true
	}

	c.accessIssued = false
	return resp, false
}

// MissStall reports whether the cache's state machine is currently
// servicing a miss (the caller must hold its request stable).
func (c *Cache) MissStall() bool {
	return c.state != fsmIdle
}

// Stats returns the cache's hit/miss counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Reset clears all cache state: meta, pipeline latches, and the miss FSM.
func (c *Cache) Reset() {
	c.meta.Reset()
	c.s1 = stageEntry{}
	c.s2 = stageEntry{}
	c.s2Resp = Response{}
	c.state = fsmIdle
	c.accessIssued = false
	c.stats = Stats{}
}
