package ids

import (
	"strconv"
	"sync"
	"time"
)

// Generator produces 63-bit snowflake ids: 41 bits of milliseconds since the
// epoch, 10 bits of node id, 12 bits of sequence. Ids from one generator are
// strictly increasing, so they double as a creation-order tiebreaker.
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
	now      func() time.Time
}

var (
	defaultGen *Generator
	once       sync.Once
)

func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	return &Generator{
		epochMS: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		nodeID:  nodeID,
		now:     time.Now,
	}
}

func initDefault() {
	once.Do(func() {
		defaultGen = NewGenerator(1)
	})
}

// Generate returns the next id of the process-wide generator.
func Generate() int64 {
	initDefault()
	return defaultGen.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID 设置 nodeID（0~1023），在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.mu.Lock()
	defaultGen.nodeID = nodeID
	defaultGen.mu.Unlock()
}

// Time extracts the creation time encoded in id.
func (g *Generator) Time(id int64) time.Time {
	return time.UnixMilli((id >> 22) + g.epochMS)
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.lastTSMS {
		// clock moved backwards: keep issuing from the last timestamp
		now = g.lastTSMS
	}
	if now == g.lastTSMS {
		g.seq = (g.seq + 1) & 0xFFF
		if g.seq == 0 {
			// sequence exhausted for this millisecond
			now++
		}
	} else {
		g.seq = 0
	}
	g.lastTSMS = now

	ts := (now - g.epochMS) & ((1 << 41) - 1)
	return (ts << 22) | (g.nodeID << 12) | g.seq
}
