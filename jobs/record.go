// Job accounting records as delivered by a job-record source, one per job or job step.

package jobs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Slurm prints this in the NodeList field of jobs that never ran.
const NoneAssigned = "None assigned"

// Energy readings at or above this are taken to be a wrapped or uninitialized hardware counter.
const MaxValidEnergy = 1_000_000_000_000_000_000

type Record struct {
	// "42" for a job, "42.0", "42.batch", "42.extern" etc for its steps.  Array and het job ids
	// ("42_7", "42+1") are job ids like any other.
	JobID string

	// "[d-]hh:mm:ss"
	Elapsed string

	Energy Energy

	// Compact host list, ignored for steps
	NodeList string
}

func (r *Record) IsStep() bool {
	return strings.IndexByte(r.JobID, '.') != -1
}

// The id of the job the record belongs to, which is the record's own id for a job.
func (r *Record) ParentID() string {
	id, _, _ := strings.Cut(r.JobID, ".")
	return id
}

// Energy is an optional reading in joules.  An invalid reading is a measurement gap: energy-based
// costs are omitted for the job, nothing else changes.
type Energy struct {
	Joules uint64
	Valid  bool
}

func NewEnergy(joules uint64) Energy {
	return Energy{Joules: joules, Valid: joules < MaxValidEnergy}
}

// ParseEnergy never fails.  Empty, unparseable and out-of-range readings are invalid.
func ParseEnergy(s string) Energy {
	s = strings.TrimSpace(s)
	if s == "" {
		return Energy{}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Energy{}
	}
	return NewEnergy(n)
}

// Add sums valid readings; an invalid reading contributes nothing.  The sum is invalid only if both
// operands are, or if it reaches the validity limit.
func (e Energy) Add(other Energy) Energy {
	switch {
	case !other.Valid:
		return e
	case !e.Valid:
		return other
	default:
		return NewEnergy(e.Joules + other.Joules)
	}
}

func (e Energy) String() string {
	if !e.Valid {
		return "-"
	}
	return strconv.FormatUint(e.Joules, 10)
}

var elapsedRe = regexp.MustCompile(`^(?:(\d+)-)?(\d+):(\d\d):(\d\d)$`)

// ParseElapsed parses Slurm's elapsed-time format "[d-]hh:mm:ss" into seconds.
func ParseElapsed(s string) (uint64, error) {
	m := elapsedRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("Elapsed time '%s' does not match [d-]hh:mm:ss", s)
	}
	var days uint64
	if m[1] != "" {
		d, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("Elapsed time '%s': %w", s, err)
		}
		days = d
	}
	hours, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Elapsed time '%s': %w", s, err)
	}
	minutes, _ := strconv.ParseUint(m[3], 10, 64)
	seconds, _ := strconv.ParseUint(m[4], 10, 64)
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("Elapsed time '%s' out of range", s)
	}
	return ((days*24+hours)*60+minutes)*60 + seconds, nil
}

// FormatElapsed is the inverse of ParseElapsed, for sources that report raw seconds.
func FormatElapsed(secs uint64) string {
	days := secs / (24 * 3600)
	secs %= 24 * 3600
	hms := fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
	if days > 0 {
		return fmt.Sprintf("%d-%s", days, hms)
	}
	return hms
}
