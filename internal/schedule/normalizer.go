package schedule

import (
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/doctoc/scheduling-api/internal/model"
)

// DefaultMaxConcurrent is the capacity applied when overbooking is enabled
// but no explicit limit is configured.
const DefaultMaxConcurrent = 2

// Normalizer merges the per-appointment-type calendar fragments of a raw
// doctor configuration into one canonical ScheduleConfig. Upstream data is
// heterogeneous and frequently partial, so malformed fragments are skipped
// rather than raised; skips are counted so callers can observe how lossy a
// merge was.
type Normalizer struct {
	defaultTimezone      string
	defaultMaxConcurrent int
	logger               zerolog.Logger
}

func NewNormalizer(defaultTimezone string, defaultMaxConcurrent int, logger zerolog.Logger) *Normalizer {
	if defaultMaxConcurrent <= 0 {
		defaultMaxConcurrent = DefaultMaxConcurrent
	}
	return &Normalizer{
		defaultTimezone:      defaultTimezone,
		defaultMaxConcurrent: defaultMaxConcurrent,
		logger:               logger,
	}
}

// NormalizeStats counts what the lenient merge dropped.
type NormalizeStats struct {
	Groups           int `json:"groups"`
	Types            int `json:"types"`
	SkippedGroups    int `json:"skipped_groups"`
	SkippedTypes     int `json:"skipped_types"`
	SkippedWeekdays  int `json:"skipped_weekdays"`
	SkippedOverrides int `json:"skipped_overrides"`
}

func (s NormalizeStats) Skipped() int {
	return s.SkippedGroups + s.SkippedTypes + s.SkippedWeekdays + s.SkippedOverrides
}

// rawTypeSchedule keeps the per-day block lists as raw JSON so that one
// malformed weekday does not discard the whole appointment type.
type rawTypeSchedule struct {
	HorariesFijo     map[string]json.RawMessage `json:"horariesFijo"`
	HorariesDinamico json.RawMessage            `json:"horariesDinamico"`
}

// Normalize produces the canonical schedule for one doctor. The merge is
// deterministic: groups and types are visited in sorted key order, weekly
// blocks are de-duplicated by (start,end) and sorted ascending, and override
// windows are keyed by (id,startDate,endDate) with the first occurrence
// winning. Normalizing the same input twice yields identical output.
func (n *Normalizer) Normalize(raw *model.RawCalendarConfig) (*model.ScheduleConfig, NormalizeStats) {
	var stats NormalizeStats

	cfg := &model.ScheduleConfig{
		MaxConcurrent: n.defaultMaxConcurrent,
		Timezone:      n.defaultTimezone,
	}
	if raw == nil {
		return cfg, stats
	}

	cfg.AllowOverbooking = raw.Overschedule
	if raw.MaxConcurrentAppointments != nil {
		cfg.MaxConcurrent = *raw.MaxConcurrentAppointments
	}
	if raw.Timezone != "" {
		cfg.Timezone = raw.Timezone
	}

	weekly := model.WeeklySchedule{}
	var overrides []model.DateOverride
	seenOverrides := map[string]bool{}

	for _, groupKey := range sortedKeys(raw.Horarios) {
		stats.Groups++
		var group map[string]json.RawMessage
		if err := json.Unmarshal(raw.Horarios[groupKey], &group); err != nil {
			stats.SkippedGroups++
			continue
		}
		for _, typeKey := range sortedKeys(group) {
			stats.Types++
			var typ rawTypeSchedule
			if err := json.Unmarshal(group[typeKey], &typ); err != nil {
				stats.SkippedTypes++
				continue
			}
			n.mergeWeekly(weekly, typ.HorariesFijo, &stats)
			overrides = n.mergeOverrides(overrides, seenOverrides, typ.HorariesDinamico, &stats)
		}
	}

	if len(weekly) > 0 {
		cfg.Weekly = weekly
	}
	if len(overrides) > 0 {
		cfg.Overrides = overrides
	}

	if stats.Skipped() > 0 {
		n.logger.Warn().
			Int("skipped_groups", stats.SkippedGroups).
			Int("skipped_types", stats.SkippedTypes).
			Int("skipped_weekdays", stats.SkippedWeekdays).
			Int("skipped_overrides", stats.SkippedOverrides).
			Msg("calendar config contained malformed fragments")
	}
	return cfg, stats
}

func (n *Normalizer) mergeWeekly(weekly model.WeeklySchedule, fixed map[string]json.RawMessage, stats *NormalizeStats) {
	for _, dayName := range sortedKeys(fixed) {
		day, ok := model.ParseWeekday(dayName)
		if !ok {
			stats.SkippedWeekdays++
			continue
		}
		var blocks []model.TimeBlock
		if err := json.Unmarshal(fixed[dayName], &blocks); err != nil {
			stats.SkippedWeekdays++
			continue
		}
		if len(blocks) == 0 {
			continue
		}
		merged := weekly[day]
		seen := map[string]bool{}
		for _, b := range merged {
			seen[b.Start+"-"+b.End] = true
		}
		for _, b := range blocks {
			key := b.Start + "-" + b.End
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, b)
		}
		sortBlocks(merged)
		weekly[day] = merged
	}
}

func (n *Normalizer) mergeOverrides(overrides []model.DateOverride, seen map[string]bool, raw json.RawMessage, stats *NormalizeStats) []model.DateOverride {
	if len(raw) == 0 {
		return overrides
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Not an array: tolerated, the whole list is ignored.
		stats.SkippedOverrides++
		return overrides
	}
	for _, entry := range entries {
		var o model.DateOverride
		if err := json.Unmarshal(entry, &o); err != nil {
			stats.SkippedOverrides++
			continue
		}
		if seen[o.Key()] {
			continue
		}
		seen[o.Key()] = true

		cleaned := make(map[string][]model.TimeBlock, len(o.DaySchedules))
		for date, blocks := range o.DaySchedules {
			unique := make([]model.TimeBlock, 0, len(blocks))
			byKey := map[string]bool{}
			for _, b := range blocks {
				key := b.Start + "-" + b.End
				if byKey[key] {
					continue
				}
				byKey[key] = true
				unique = append(unique, b)
			}
			sortBlocks(unique)
			cleaned[date] = unique
		}
		o.DaySchedules = cleaned
		overrides = append(overrides, o)
	}
	return overrides
}

func sortBlocks(blocks []model.TimeBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start < blocks[j].Start
	})
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
