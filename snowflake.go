package akashi

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Epoch used when generating Snowflakes, in seconds since the UNIX epoch.
// This is the UNIX timestamp for midnight (UTC) on Dec. 15, 2018.
const SnowflakeEpochSeconds = 1_544_832_000

const (
	sequenceBits = 12
	workerIDBits = 5
	groupIDBits  = 5

	workerIDShift  = sequenceBits
	groupIDShift   = sequenceBits + workerIDBits
	timestampShift = sequenceBits + workerIDBits + groupIDBits

	sequenceMask = (1 << sequenceBits) - 1

	// maxTimestamp is the largest millisecond offset the timestamp field
	// can hold (42 bits, reaching into the 22nd century).
	maxTimestamp = (1 << (64 - timestampShift)) - 1
)

// MaxWorkerID is the highest worker ID a Snowflake can encode.
const MaxWorkerID = (1 << workerIDBits) - 1

// MaxGroupID is the highest group ID a Snowflake can encode.
const MaxGroupID = (1 << groupIDBits) - 1

// Snowflake is a unique 64-bit identifier.
//
// Snowflakes encode a millisecond timestamp, application-specific group and
// worker IDs, and a sequence number disambiguating IDs generated within the
// same millisecond. Generation is strictly monotonic per generator, so IDs
// are never reused.
type Snowflake uint64

// Timestamp returns the time at which this Snowflake was generated.
func (s Snowflake) Timestamp() time.Time {
	ms := int64(s >> timestampShift)
	return time.Unix(SnowflakeEpochSeconds, 0).Add(time.Duration(ms) * time.Millisecond).UTC()
}

// Sequence returns the sequence number of this Snowflake.
func (s Snowflake) Sequence() uint64 {
	return uint64(s) & sequenceMask
}

// WorkerID returns the worker ID that generated this Snowflake.
func (s Snowflake) WorkerID() uint64 {
	return (uint64(s) >> workerIDShift) & MaxWorkerID
}

// GroupID returns the group ID that generated this Snowflake.
func (s Snowflake) GroupID() uint64 {
	return (uint64(s) >> groupIDShift) & MaxGroupID
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// EntityKind tags an EntityID with the class of game object it names.
//
// Kind-specific behavior belongs to the component types attached to an
// entity, not to the kind itself; the tag only exists so IDs of different
// object classes can never alias each other.
type EntityKind uint8

const (
	// KindPlayer identifies player entities.
	KindPlayer EntityKind = iota + 1

	// KindCard identifies card entities.
	KindCard
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindCard:
		return "card"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// valid reports whether k is one of the closed set of entity kinds.
func (k EntityKind) valid() bool {
	return k == KindPlayer || k == KindCard
}

// EntityID identifies a single game object.
//
// An EntityID is immutable once issued. Equality is by (Raw, Kind), and the
// zero value never names a live entity. EntityIDs are comparable and usable
// as map keys.
type EntityID struct {
	Raw  Snowflake
	Kind EntityKind
}

// IsZero reports whether id is the zero EntityID.
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

func (id EntityID) String() string {
	return id.Kind.String() + ":" + id.Raw.String()
}

// SnowflakeGen generates Snowflake IDs.
//
// Generators used concurrently in separate processes should be created with
// distinct group and/or worker IDs so that all generated IDs stay unique.
// A single SnowflakeGen is safe for concurrent use.
type SnowflakeGen struct {
	mu       sync.Mutex
	groupID  uint64
	workerID uint64
	lastMs   uint64
	sequence uint64

	// overridable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewSnowflakeGen creates a generator with explicit group and worker IDs.
func NewSnowflakeGen(groupID, workerID uint64) (*SnowflakeGen, error) {
	if groupID > MaxGroupID {
		return nil, fmt.Errorf("akashi: group ID %d exceeds maximum %d", groupID, MaxGroupID)
	}
	if workerID > MaxWorkerID {
		return nil, fmt.Errorf("akashi: worker ID %d exceeds maximum %d", workerID, MaxWorkerID)
	}
	return &SnowflakeGen{
		groupID:  groupID,
		workerID: workerID,
		now:      time.Now,
		sleep:    time.Sleep,
	}, nil
}

// NewRandomSnowflakeGen creates a generator whose group and worker IDs are
// derived from a random UUID. Collision odds between two processes are
// 1 in 1024, so pin IDs explicitly when running many nodes.
func NewRandomSnowflakeGen() *SnowflakeGen {
	u := uuid.New()
	gen, _ := NewSnowflakeGen(uint64(u[0])&MaxGroupID, uint64(u[1])&MaxWorkerID)
	return gen
}

func (g *SnowflakeGen) timestampNow() (uint64, error) {
	ms := g.now().UnixMilli() - SnowflakeEpochSeconds*1000
	if ms < 0 {
		return 0, fmt.Errorf("akashi: system clock %v is set before the snowflake epoch", g.now().UTC())
	}
	return uint64(ms), nil
}

// Generate returns a fresh Snowflake. It fails with ErrExhausted once the
// timestamp field overflows its 42 bits, and with an error when the system
// clock is set before the snowflake epoch.
//
// In the rare event that the system clock moves backwards, or more than 4096
// IDs are requested within one millisecond, Generate sleeps until it can
// hand out a unique ID.
func (g *SnowflakeGen) Generate() (Snowflake, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		ms, err := g.timestampNow()
		if err != nil {
			return 0, err
		}
		if ms > maxTimestamp {
			return 0, ErrExhausted
		}
		if ms < g.lastMs {
			// Clock went backwards; wait it out rather than risk a duplicate.
			g.sleep(time.Duration(g.lastMs-ms) * time.Millisecond)
			continue
		}

		if ms == g.lastMs {
			g.sequence = (g.sequence + 1) & sequenceMask
			if g.sequence == 0 {
				// Sequence overrun within a single millisecond.
				g.sleep(time.Millisecond)
				continue
			}
		} else {
			g.sequence = 0
		}

		g.lastMs = ms
		return Snowflake(ms<<timestampShift |
			g.groupID<<groupIDShift |
			g.workerID<<workerIDShift |
			g.sequence), nil
	}
}
