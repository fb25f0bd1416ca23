package sourcer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/evidence"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/metrics"
)

// Sourcer maps answer sentences back to the evidence chunks that support
// them. Admission is two-tier: the best chunk must clear an absolute
// distance limit, and further chunks join only while they are nearly as
// close as the best one.
type Sourcer struct {
	embed      embedding.Provider
	cfg        config.SourcingConfig
	thresholds config.Thresholds
}

func NewSourcer(embed embedding.Provider, cfg config.SourcingConfig, thresholds config.Thresholds) *Sourcer {
	return &Sourcer{embed: embed, cfg: cfg, thresholds: thresholds}
}

// GroupAttribution is the outcome for one sentence group.
type GroupAttribution struct {
	Text    string
	Indices []int
}

// Source returns the annotated answer and flips is_used_in_answer on every
// referenced chunk. Any top-level failure returns the answer unsourced.
func (s *Sourcer) Source(ctx context.Context, answer string, ec *evidence.Context) string {
	start := time.Now()
	defer metrics.ObserveSourcing(start)

	if ec == nil || len(ec.Chunks) == 0 || strings.TrimSpace(answer) == "" {
		return answer
	}

	groups := segment(answer, s.cfg.MinGroupChars)
	attributions := make([]GroupAttribution, len(groups))

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(idx int, group string) {
			defer wg.Done()
			attributions[idx] = s.attributeGroup(ctx, idx, group, ec)
		}(i, g)
	}
	wg.Wait()

	// mark chunks only after every group has resolved
	for _, att := range attributions {
		for _, index := range att.Indices {
			if !ec.MarkUsed(index) {
				logger.Warnf("sourcer: attribution produced out-of-range index %d", index)
			}
		}
	}
	return render(attributions)
}

// attributeGroup finds the supporting chunks for one sentence group. Errors
// degrade to an unsourced group, never fail the answer. The group text is
// kept verbatim for rendering; the cleaned form exists only for the skip
// checks and the distance computation, so markdown structure survives.
func (s *Sourcer) attributeGroup(ctx context.Context, groupIdx int, group string, ec *evidence.Context) GroupAttribution {
	att := GroupAttribution{Text: group}
	cleaned := cleanGroup(group)
	if skipGroup(cleaned) {
		metrics.IncGroupOutcome("skipped")
		return att
	}

	type scored struct {
		index    int
		distance float64
	}
	distances := make([]scored, 0, len(ec.Chunks))
	for _, chunk := range ec.Chunks {
		d := s.embed.Distance(ctx, cleaned, chunk.Content)
		distances = append(distances, scored{index: chunk.Index, distance: d})
	}
	sort.SliceStable(distances, func(i, j int) bool { return distances[i].distance < distances[j].distance })

	if len(distances) == 0 || distances[0].distance >= s.thresholds.SourceDistanceLimit {
		best := embedding.SentinelDistance
		if len(distances) > 0 {
			best = distances[0].distance
		}
		logger.Debugf("sourcer: group %d unsourced (best distance %.3f)", groupIdx, best)
		metrics.IncGroupOutcome("unsourced")
		return att
	}

	best := distances[0].distance
	att.Indices = append(att.Indices, distances[0].index)
	for _, d := range distances[1:] {
		if len(att.Indices) >= s.cfg.SourcesPerSentence {
			break
		}
		if d.distance-best >= s.thresholds.SourceDistanceNeighbor {
			break
		}
		att.Indices = append(att.Indices, d.index)
	}
	metrics.IncGroupOutcome("sourced")
	return att
}

// segment splits on sentence boundaries and greedily re-merges fragments
// until each group reaches the character floor. A break point preceded by a
// whitespace run and a single character is skipped, it usually sits inside
// an abbreviation or list marker.
func segment(answer string, minChars int) []string {
	if minChars <= 0 {
		minChars = 200
	}
	sentences := strings.Split(answer, ". ")
	groups := make([]string, 0, len(sentences))
	var stack string
	for _, sentence := range sentences {
		if stack == "" {
			stack = sentence
		} else {
			stack += ". " + sentence
		}
		if len(stack) >= minChars && !breakInhibited(stack) {
			groups = append(groups, stack)
			stack = ""
		}
	}
	if stack != "" {
		groups = append(groups, stack)
	}
	return groups
}

func breakInhibited(stack string) bool {
	if len(stack) < 3 {
		return false
	}
	isSpace := func(b byte) bool { return b == ' ' || b == '\n' || b == '\t' }
	return isSpace(stack[len(stack)-2]) || isSpace(stack[len(stack)-3])
}

var (
	bareListMarker = regexp.MustCompile(`^[ \n][a-zA-Z0-9]$`)
	alnum          = regexp.MustCompile(`[a-zA-Z0-9]`)
)

func cleanGroup(group string) string {
	group = strings.TrimSpace(group)
	for strings.Contains(group, "\n\n") {
		group = strings.ReplaceAll(group, "\n\n", "\n")
	}
	for strings.Contains(group, "  ") {
		group = strings.ReplaceAll(group, "  ", " ")
	}
	return group
}

// skipGroup drops groups too short to source and bare list markers.
func skipGroup(cleaned string) bool {
	if len(cleaned) <= 5 {
		return true
	}
	if len(cleaned) >= 2 && bareListMarker.MatchString(cleaned[len(cleaned)-2:]) {
		return true
	}
	return false
}

// render rebuilds the answer from the verbatim group texts: each group
// carries its reference tags, then the sentence separator when the group
// holds prose.
func render(attributions []GroupAttribution) string {
	var b strings.Builder
	for _, att := range attributions {
		b.WriteString(att.Text)
		for _, index := range att.Indices {
			b.WriteString(fmt.Sprintf(" [%d]", index))
		}
		if alnum.MatchString(att.Text) {
			b.WriteString(". ")
		}
	}
	return b.String()
}
