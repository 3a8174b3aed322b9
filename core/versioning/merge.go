package versioning

import (
	"fmt"
	"strings"

	"github.com/adalundhe/skillvcs/skilldoc"
)

type MergeStrategy string

const (
	StrategyMerge    MergeStrategy = "merge"
	StrategyReplace  MergeStrategy = "replace"
	StrategyKeepBoth MergeStrategy = "keep-both"
)

func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyMerge:
		return StrategyMerge, nil
	case StrategyReplace:
		return StrategyReplace, nil
	case StrategyKeepBoth, "keep_both", "keepboth":
		return StrategyKeepBoth, nil
	}
	return "", fmt.Errorf("%w: unknown merge strategy %q", ErrValidation, s)
}

type ConflictKind string

const (
	ConflictContent    ConflictKind = "content"
	ConflictMetadata   ConflictKind = "metadata"
	ConflictDependency ConflictKind = "dependency"
)

// MergeConflict records one divergence and how it was settled.
type MergeConflict struct {
	Location      string        `json:"location"`
	Kind          ConflictKind  `json:"kind"`
	SourceValue   string        `json:"source_value"`
	TargetValue   string        `json:"target_value"`
	ResolvedValue *string       `json:"resolved_value,omitempty"`
	Strategy      MergeStrategy `json:"resolution_strategy"`
}

type MergeResult struct {
	Content   []byte          `json:"-"`
	Conflicts []MergeConflict `json:"conflicts"`
	Strategy  MergeStrategy   `json:"strategy"`
}

func (r *MergeResult) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// ConflictError returns an advisory error when the merge needs review.
func (r *MergeResult) ConflictError() error {
	if !r.HasConflicts() {
		return nil
	}
	return newVersionError(KindConflictPresent, "merge", "", "",
		fmt.Sprintf("%d conflict(s) resolved in favor of source", len(r.Conflicts)), nil)
}

type MergeOptions struct {
	SourceLabel string
	TargetLabel string
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.SourceLabel == "" {
		o.SourceLabel = "source"
	}
	if o.TargetLabel == "" {
		o.TargetLabel = "target"
	}
	return o
}

// MergeEngine is a two-way line merge. It has no common ancestor, so any
// region where both sides differ is a conflict settled in favor of source.
type MergeEngine struct {
	differ *MyersDiffer
}

func NewMergeEngine() *MergeEngine {
	return &MergeEngine{differ: NewMyersDiffer(0)}
}

func (e *MergeEngine) Merge(source, target []byte, strategy MergeStrategy, opts MergeOptions) (*MergeResult, error) {
	strategy, err := ParseMergeStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch strategy {
	case StrategyReplace:
		return &MergeResult{Content: cloneBlobContent(source), Conflicts: []MergeConflict{}, Strategy: strategy}, nil
	case StrategyKeepBoth:
		return &MergeResult{Content: keepBoth(source, target, opts), Conflicts: []MergeConflict{}, Strategy: strategy}, nil
	default:
		return e.lineMerge(source, target), nil
	}
}

func keepBoth(source, target []byte, opts MergeOptions) []byte {
	var b strings.Builder
	writeSection := func(label string, content []byte) {
		fmt.Fprintf(&b, "=== %s ===\n", label)
		b.Write(content)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	writeSection(opts.SourceLabel, source)
	writeSection(opts.TargetLabel, target)
	return []byte(b.String())
}

type mergeState struct {
	sourceLines    []string
	targetLines    []string
	sourceSections []skilldoc.LineSection
	targetSections []skilldoc.LineSection
	out            []string
	conflicts      []MergeConflict
}

// lineMerge aligns both sides on their longest common subsequence. Lines on
// the alignment are copied, runs present on one side only are kept verbatim,
// and runs where both sides changed are paired line by line as conflicts.
func (e *MergeEngine) lineMerge(source, target []byte) *MergeResult {
	st := &mergeState{
		sourceLines:    splitLines(source),
		targetLines:    splitLines(target),
		sourceSections: skilldoc.LineSections(source),
		targetSections: skilldoc.LineSections(target),
		conflicts:      []MergeConflict{},
	}
	ops := e.differ.computeEditScript(st.sourceLines, st.targetLines)

	for i := 0; i < len(ops); {
		if ops[i].opType == DiffLineContext {
			st.out = append(st.out, st.sourceLines[ops[i].oldIndex])
			i++
			continue
		}

		var fromSource, fromTarget []int
		for i < len(ops) && ops[i].opType != DiffLineContext {
			if ops[i].opType == DiffLineDelete {
				fromSource = append(fromSource, ops[i].oldIndex)
			} else {
				fromTarget = append(fromTarget, ops[i].newIndex)
			}
			i++
		}
		st.mergeRun(fromSource, fromTarget)
	}

	return &MergeResult{
		Content:   joinLines(st.out),
		Conflicts: st.conflicts,
		Strategy:  StrategyMerge,
	}
}

func (st *mergeState) mergeRun(fromSource, fromTarget []int) {
	if len(fromTarget) == 0 {
		for _, idx := range fromSource {
			st.out = append(st.out, st.sourceLines[idx])
		}
		return
	}
	if len(fromSource) == 0 {
		for _, idx := range fromTarget {
			st.out = append(st.out, st.targetLines[idx])
		}
		return
	}

	for j := range max(len(fromSource), len(fromTarget)) {
		srcIdx, tgtIdx := -1, -1
		var srcVal, tgtVal string
		if j < len(fromSource) {
			srcIdx = fromSource[j]
			srcVal = st.sourceLines[srcIdx]
		}
		if j < len(fromTarget) {
			tgtIdx = fromTarget[j]
			tgtVal = st.targetLines[tgtIdx]
		}

		resolved := srcVal
		if srcIdx < 0 {
			resolved = tgtVal
		}
		st.out = append(st.out, resolved)

		section := st.sectionFor(srcIdx, tgtIdx)
		st.conflicts = append(st.conflicts, MergeConflict{
			Location:      conflictLocation(section, len(st.out)),
			Kind:          conflictKind(section),
			SourceValue:   srcVal,
			TargetValue:   tgtVal,
			ResolvedValue: &resolved,
			Strategy:      StrategyMerge,
		})
	}
}

// sectionFor prefers the source side's classification.
func (st *mergeState) sectionFor(srcIdx, tgtIdx int) skilldoc.LineSection {
	if srcIdx >= 0 && srcIdx < len(st.sourceSections) && st.sourceSections[srcIdx].InFrontmatter {
		return st.sourceSections[srcIdx]
	}
	if tgtIdx >= 0 && tgtIdx < len(st.targetSections) && st.targetSections[tgtIdx].InFrontmatter {
		return st.targetSections[tgtIdx]
	}
	return skilldoc.LineSection{}
}

func conflictLocation(section skilldoc.LineSection, line int) string {
	if section.InFrontmatter {
		return fmt.Sprintf("frontmatter:%d", line)
	}
	return fmt.Sprintf("body:%d", line)
}

func conflictKind(section skilldoc.LineSection) ConflictKind {
	switch {
	case !section.InFrontmatter:
		return ConflictContent
	case skilldoc.IsDependencyKey(section.Key):
		return ConflictDependency
	default:
		return ConflictMetadata
	}
}
