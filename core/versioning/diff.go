package versioning

import (
	"strings"
)

type DiffLineType int

const (
	DiffLineContext DiffLineType = iota
	DiffLineAdd
	DiffLineDelete
)

var diffLineTypeNames = map[DiffLineType]string{
	DiffLineContext: "context",
	DiffLineAdd:     "add",
	DiffLineDelete:  "delete",
}

func (t DiffLineType) String() string {
	if name, ok := diffLineTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t DiffLineType) Prefix() string {
	switch t {
	case DiffLineAdd:
		return "+"
	case DiffLineDelete:
		return "-"
	default:
		return " "
	}
}

type DiffLine struct {
	Type    DiffLineType `json:"type"`
	Content string       `json:"content"`
	OldLine int          `json:"old_line,omitempty"`
	NewLine int          `json:"new_line,omitempty"`
}

type DiffHunk struct {
	OldStart int        `json:"old_start"`
	OldCount int        `json:"old_count"`
	NewStart int        `json:"new_start"`
	NewCount int        `json:"new_count"`
	Lines    []DiffLine `json:"lines"`
}

type DiffStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Changes   int `json:"changes"`
}

type FileDiff struct {
	Hunks []DiffHunk
	Stats DiffStats
}

func (d *FileDiff) Empty() bool {
	return len(d.Hunks) == 0
}

type MyersDiffer struct {
	ContextLines int
}

func NewMyersDiffer(contextLines int) *MyersDiffer {
	if contextLines < 0 {
		contextLines = 0
	}
	return &MyersDiffer{ContextLines: contextLines}
}

func (d *MyersDiffer) DiffBytes(base, target []byte) *FileDiff {
	return d.DiffLines(splitLines(base), splitLines(target))
}

// splitLines treats "\n" as a terminator, so "a\nb\n" and "a\nb" both have
// two lines.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func (d *MyersDiffer) DiffLines(baseLines, targetLines []string) *FileDiff {
	editScript := d.computeEditScript(baseLines, targetLines)

	return &FileDiff{
		Hunks: d.buildHunks(editScript, baseLines, targetLines),
		Stats: computeStats(editScript),
	}
}

type editOp struct {
	opType   DiffLineType
	oldIndex int
	newIndex int
}

func (d *MyersDiffer) computeEditScript(base, target []string) []editOp {
	n, m := len(base), len(target)

	if n == 0 {
		return allInserts(m)
	}
	if m == 0 {
		return allDeletes(n)
	}
	return d.myersAlgorithm(base, target)
}

func allInserts(m int) []editOp {
	if m == 0 {
		return nil
	}
	ops := make([]editOp, m)
	for i := range m {
		ops[i] = editOp{opType: DiffLineAdd, newIndex: i}
	}
	return ops
}

func allDeletes(n int) []editOp {
	ops := make([]editOp, n)
	for i := range n {
		ops[i] = editOp{opType: DiffLineDelete, oldIndex: i}
	}
	return ops
}

func (d *MyersDiffer) myersAlgorithm(base, target []string) []editOp {
	n, m := len(base), len(target)
	max := n + m

	v := make([]int, 2*max+1)
	offset := max
	var trace [][]int

	for depth := 0; depth <= max; depth++ {
		trace = append(trace, append([]int(nil), v...))
		for k := -depth; k <= depth; k += 2 {
			x := nextX(v, offset, k, depth)
			y := x - k
			for x < n && y < m && base[x] == target[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				return backtrack(trace, n, m, offset)
			}
		}
	}
	return nil
}

func nextX(v []int, offset, k, depth int) int {
	if k == -depth || (k != depth && v[offset+k-1] < v[offset+k+1]) {
		return v[offset+k+1]
	}
	return v[offset+k-1] + 1
}

func backtrack(trace [][]int, n, m, offset int) []editOp {
	ops := make([]editOp, 0, n+m)
	x, y := n, m

	for depth := len(trace) - 1; depth > 0; depth-- {
		k := x - y
		vPrev := trace[depth]

		prevK := k - 1
		if k == -depth || (k != depth && vPrev[offset+k-1] < vPrev[offset+k+1]) {
			prevK = k + 1
		}
		prevX := vPrev[offset+prevK]
		prevY := prevX - prevK

		afterX, afterY := prevX, prevY+1
		if prevK < k {
			afterX, afterY = prevX+1, prevY
		}
		ops = addSnakeOps(ops, x, y, afterX, afterY)

		if prevK < k {
			ops = append(ops, editOp{opType: DiffLineDelete, oldIndex: prevX})
		} else {
			ops = append(ops, editOp{opType: DiffLineAdd, newIndex: prevY})
		}
		x, y = prevX, prevY
	}

	ops = addSnakeOps(ops, x, y, 0, 0)
	reverseOps(ops)
	return ops
}

func addSnakeOps(ops []editOp, x, y, prevX, prevY int) []editOp {
	for x > prevX && y > prevY {
		x--
		y--
		ops = append(ops, editOp{opType: DiffLineContext, oldIndex: x, newIndex: y})
	}
	return ops
}

func reverseOps(ops []editOp) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}

func (d *MyersDiffer) buildHunks(editScript []editOp, base, target []string) []DiffHunk {
	ranges := d.mergeRanges(findChangeRanges(editScript))
	if len(ranges) == 0 {
		return nil
	}

	hunks := make([]DiffHunk, 0, len(ranges))
	for _, r := range ranges {
		hunks = append(hunks, d.createHunk(r[0], r[1], editScript, base, target))
	}
	return hunks
}

func findChangeRanges(editScript []editOp) [][2]int {
	var ranges [][2]int
	start := -1

	for i, op := range editScript {
		switch {
		case op.opType != DiffLineContext && start < 0:
			start = i
		case op.opType == DiffLineContext && start >= 0:
			ranges = append(ranges, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		ranges = append(ranges, [2]int{start, len(editScript)})
	}
	return ranges
}

// mergeRanges joins change ranges whose context windows would overlap so no
// line appears in two hunks.
func (d *MyersDiffer) mergeRanges(ranges [][2]int) [][2]int {
	if len(ranges) < 2 {
		return ranges
	}
	merged := [][2]int{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r[0]-last[1] <= 2*d.ContextLines {
			last[1] = r[1]
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func (d *MyersDiffer) createHunk(start, end int, ops []editOp, base, target []string) DiffHunk {
	contextStart := max(start-d.ContextLines, 0)
	contextEnd := min(end+d.ContextLines, len(ops))

	oldBefore, newBefore := countSides(ops, 0, contextStart)
	oldCount, newCount := countSides(ops, contextStart, contextEnd)

	lines := make([]DiffLine, 0, contextEnd-contextStart)
	for i := contextStart; i < contextEnd; i++ {
		lines = append(lines, createDiffLine(ops[i], base, target))
	}

	return DiffHunk{
		OldStart: hunkStart(oldBefore, oldCount),
		OldCount: oldCount,
		NewStart: hunkStart(newBefore, newCount),
		NewCount: newCount,
		Lines:    lines,
	}
}

// hunkStart follows unified diff convention: a side with no lines reports
// the line preceding the hunk.
func hunkStart(before, count int) int {
	if count == 0 {
		return before
	}
	return before + 1
}

func countSides(ops []editOp, start, end int) (int, int) {
	oldCount, newCount := 0, 0
	for i := start; i < end; i++ {
		if ops[i].opType != DiffLineAdd {
			oldCount++
		}
		if ops[i].opType != DiffLineDelete {
			newCount++
		}
	}
	return oldCount, newCount
}

func createDiffLine(op editOp, base, target []string) DiffLine {
	switch op.opType {
	case DiffLineAdd:
		return DiffLine{
			Type:    DiffLineAdd,
			Content: safeGetLine(target, op.newIndex),
			NewLine: op.newIndex + 1,
		}
	case DiffLineDelete:
		return DiffLine{
			Type:    DiffLineDelete,
			Content: safeGetLine(base, op.oldIndex),
			OldLine: op.oldIndex + 1,
		}
	default:
		return DiffLine{
			Type:    DiffLineContext,
			Content: safeGetLine(base, op.oldIndex),
			OldLine: op.oldIndex + 1,
			NewLine: op.newIndex + 1,
		}
	}
}

func safeGetLine(lines []string, index int) string {
	if index < 0 || index >= len(lines) {
		return ""
	}
	return lines[index]
}

func computeStats(ops []editOp) DiffStats {
	var stats DiffStats
	for _, op := range ops {
		switch op.opType {
		case DiffLineAdd:
			stats.Additions++
		case DiffLineDelete:
			stats.Deletions++
		}
	}
	stats.Changes = stats.Additions + stats.Deletions
	return stats
}
