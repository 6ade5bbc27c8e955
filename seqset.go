package kamel

import (
	"sort"
	"strconv"
	"strings"
)

// SeqRange is a single seq-number or seq-range value (RFC 3501 ABNF). Zero
// stands for "*", the largest number in use. A single number has
// Start == Stop.
type SeqRange struct {
	Start, Stop uint32
}

// Contains reports whether the static number n falls in the range.
func (r SeqRange) Contains(n uint32) bool {
	if n == 0 || r.Start == 0 {
		return false
	}
	return r.Start <= n && (r.Stop == 0 || n <= r.Stop)
}

func (r SeqRange) String() string {
	if r.Start == r.Stop {
		return formatSeq(r.Start)
	}
	return formatSeq(r.Start) + ":" + formatSeq(r.Stop)
}

func formatSeq(n uint32) string {
	if n == 0 {
		return "*"
	}
	return strconv.FormatUint(uint64(n), 10)
}

// SeqSet is a sequence set as sent in FETCH and UID FETCH commands.
type SeqSet []SeqRange

// SeqSetRange returns the set start:stop. A zero bound means "*"; a zero
// start is treated as 1.
func SeqSetRange(start, stop uint32) SeqSet {
	if start == 0 {
		start = 1
	}
	if stop != 0 && stop < start {
		start, stop = stop, start
	}
	return SeqSet{{Start: start, Stop: stop}}
}

// SeqSetNum returns the set containing nums, sorted and with adjacent
// numbers collapsed into ranges. Zeros are ignored.
func SeqSetNum(nums ...uint32) SeqSet {
	sorted := make([]uint32, 0, len(nums))
	for _, n := range nums {
		if n != 0 {
			sorted = append(sorted, n)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var set SeqSet
	for _, n := range sorted {
		if last := len(set) - 1; last >= 0 && n <= set[last].Stop+1 {
			if n > set[last].Stop {
				set[last].Stop = n
			}
			continue
		}
		set = append(set, SeqRange{Start: n, Stop: n})
	}
	return set
}

// Contains reports whether n is in the set.
func (set SeqSet) Contains(n uint32) bool {
	for _, r := range set {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// Dynamic reports whether the set refers to "*".
func (set SeqSet) Dynamic() bool {
	for _, r := range set {
		if r.Start == 0 || r.Stop == 0 {
			return true
		}
	}
	return false
}

func (set SeqSet) String() string {
	l := make([]string, len(set))
	for i, r := range set {
		l[i] = r.String()
	}
	return strings.Join(l, ",")
}
