package homeconfig

import (
	"strconv"
	"strings"
	"time"
)

// Normalize turns a raw, loosely typed installation document into a canonical
// Config. It never fails: unusable entries are dropped, missing sections fall
// back to defaults. Normalizing an already normalized document yields the
// identical result.
func Normalize(raw map[string]any) *Config {
	if raw == nil {
		raw = map[string]any{}
	}

	pvSources := normalizePVSources(raw["pvSources"])

	dataPoints := sanitizeDataPoints(raw["dataPoints"])
	if len(dataPoints) == 0 {
		dataPoints = legacyDataPoints(raw)
	}

	gptRaw := asMap(raw["gpt"])
	apiKey := firstNonEmpty(asString(raw["openaiApiKey"]), asString(gptRaw["openaiApiKey"]))

	return &Config{
		DataPoints: dataPoints,
		PVSources:  pvSources,
		History:    normalizeHistory(asMap(raw["history"])),
		Telegram:   normalizeTelegram(asMap(raw["telegram"])),
		GPT: GPTConfig{
			// Enabled is derived from key presence, not from a flag.
			Enabled:      apiKey != "",
			OpenAIAPIKey: apiKey,
			Model:        firstNonEmpty(asString(gptRaw["model"]), asString(raw["model"]), "gpt-4o-mini"),
		},
		Scheduler: normalizeScheduler(asMap(raw["scheduler"])),
	}
}

// NormalizeObjectID coerces an object identifier to a trimmed string. It
// accepts plain strings and objects carrying id/_id/value; everything else
// yields the empty string.
func NormalizeObjectID(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range []string{"id", "_id", "value"} {
			if s, ok := scalarString(v[key]); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// NormalizeEnabled accepts true, "true", 1, and "1"; everything else is false.
func NormalizeEnabled(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v == 1
	case int:
		return v == 1
	}
	return false
}

func sanitizeDataPoints(raw any) []DataPoint {
	list := asSlice(raw)
	seen := make(map[string]struct{}, len(list))
	cleaned := make([]DataPoint, 0, len(list))

	for _, item := range list {
		entry := asMap(item)
		if entry == nil {
			continue
		}

		objectID := NormalizeObjectID(entry["objectId"])
		if objectID == "" {
			continue
		}
		if _, dup := seen[objectID]; dup {
			// first occurrence wins
			continue
		}
		seen[objectID] = struct{}{}

		cleaned = append(cleaned, DataPoint{
			ObjectID:    objectID,
			Role:        firstNonEmpty(asString(entry["role"]), "other"),
			Category:    asString(entry["category"]),
			Description: asString(entry["description"]),
			Unit:        asString(entry["unit"]),
			Enabled:     NormalizeEnabled(entry["enabled"]),
		})
	}

	return cleaned
}

// legacyDataPoints synthesizes a flat data-point list from the nested
// per-field layout of older installation documents. PV sources are handled
// exclusively via pvSources and stay out of this list so they cannot be
// counted twice against the orientation aggregation.
func legacyDataPoints(raw map[string]any) []DataPoint {
	var points []DataPoint
	seen := make(map[string]struct{})

	push := func(objectID any, category, description string) {
		id := NormalizeObjectID(objectID)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		points = append(points, DataPoint{
			ObjectID:    id,
			Role:        category,
			Category:    category,
			Description: description,
			Unit:        "",
			Enabled:     true,
		})
	}

	if energy := asMap(raw["energy"]); energy != nil {
		push(energy["houseConsumption"], "energy.houseConsumption", "Hausverbrauch")
		push(energy["gridPower"], "energy.gridPower", "Netzleistung")
		push(energy["batterySoc"], "energy.batterySoc", "Batterie SOC")
		push(energy["batteryPower"], "energy.batteryPower", "Batterie Leistung")
		push(energy["wallbox"], "energy.wallbox", "Wallbox")
	}

	if temperature := asMap(raw["temperature"]); temperature != nil {
		push(temperature["outside"], "temperature.outside", "Außentemperatur")
		push(temperature["weather"], "temperature.weather", "Wetter")
		push(temperature["frostRisk"], "temperature.frostRisk", "Frostgefahr")
	}

	if water := asMap(raw["water"]); water != nil {
		push(water["total"], "water.total", "Wasser Gesamt")
		push(water["daily"], "water.daily", "Wasser Tagesverbrauch")
		push(water["hotWater"], "water.hotWater", "Warmwasser")
		push(water["boilerTemp"], "water.boilerTemp", "Boiler Temperatur")
		push(water["circulation"], "water.circulation", "Zirkulation")
	}

	for _, item := range asSlice(raw["consumers"]) {
		c := asMap(item)
		push(c["objectId"], "consumer.power", firstNonEmpty(asString(c["name"]), "Verbraucher"))
	}

	for _, item := range asSlice(raw["rooms"]) {
		r := asMap(item)
		name := asString(r["name"])
		push(r["temperature"], "room.temperature", firstNonEmpty(name, "Raumtemperatur"))
		push(r["heatingPower"], "room.heating", firstNonEmpty(name, "Heizung"))
	}

	for _, item := range asSlice(raw["heaters"]) {
		h := asMap(item)
		push(h["objectId"], "heater", firstNonEmpty(asString(h["type"]), "Heizung"))
	}

	for _, item := range asSlice(raw["windowContacts"]) {
		w := asMap(item)
		push(w["objectId"], "window", firstNonEmpty(asString(w["name"]), "Fenster"))
	}

	for _, item := range asSlice(raw["leakSensors"]) {
		l := asMap(item)
		push(l["objectId"], "leak", firstNonEmpty(asString(l["name"]), "Leckage"))
	}

	return points
}

func normalizePVSources(raw any) []PVSource {
	list := asSlice(raw)
	sources := make([]PVSource, 0, len(list))

	for _, item := range list {
		src := asMap(item)
		if src == nil {
			continue
		}

		objectID := NormalizeObjectID(src["objectId"])
		if objectID == "" {
			continue
		}

		sources = append(sources, PVSource{
			Name:        asString(src["name"]),
			Orientation: asString(src["orientation"]),
			ObjectID:    objectID,
			Unit:        firstNonEmpty(asString(src["unit"]), "W"),
		})
	}

	return sources
}

func normalizeHistory(history map[string]any) HistoryConfig {
	cfg := HistoryConfig{
		Mode:     firstNonEmpty(asString(history["mode"]), "auto"),
		Instance: asString(history["instance"]),
	}

	// Already-normalized documents carry an adapters list; take it as-is so
	// normalization stays idempotent.
	if adapters := asSlice(history["adapters"]); len(adapters) > 0 {
		for _, item := range adapters {
			a := asMap(item)
			if a == nil {
				continue
			}
			cfg.Adapters = append(cfg.Adapters, HistoryAdapter{
				Name:     asString(a["name"]),
				Enabled:  NormalizeEnabled(a["enabled"]),
				Instance: firstNonEmpty(asString(a["instance"]), cfg.Instance),
				Window:   durationOr(a["window"], 24*time.Hour),
				Step:     durationOr(a["step"], 5*time.Minute),
				Points:   normalizeHistoryPoints(a["points"]),
			})
		}
		return cfg
	}

	if influx := asMap(history["influx"]); influx != nil {
		cfg.Adapters = append(cfg.Adapters, HistoryAdapter{
			Name:     "influx",
			Enabled:  NormalizeEnabled(influx["enabled"]),
			Instance: firstNonEmpty(asString(influx["instance"]), cfg.Instance),
			Window:   time.Duration(intOr(influx["timeframeHours"], 24)) * time.Hour,
			Step:     time.Duration(intOr(influx["resolutionMinutes"], 5)) * time.Minute,
			Points:   normalizeHistoryPoints(influx["dataPoints"]),
		})
	}

	if sqlCfg := asMap(history["sql"]); sqlCfg == nil {
		sqlCfg = asMap(history["mysql"])
		if sqlCfg != nil {
			cfg.Adapters = append(cfg.Adapters, sqlAdapter(sqlCfg, cfg.Instance))
		}
	} else {
		cfg.Adapters = append(cfg.Adapters, sqlAdapter(sqlCfg, cfg.Instance))
	}

	// An installation that names only an instance still gets history coverage
	// for its enabled data points.
	if len(cfg.Adapters) == 0 && cfg.Instance != "" && cfg.Mode != "off" {
		cfg.Adapters = append(cfg.Adapters, HistoryAdapter{
			Name:     "default",
			Enabled:  true,
			Instance: cfg.Instance,
			Window:   24 * time.Hour,
			Step:     5 * time.Minute,
		})
	}

	return cfg
}

func sqlAdapter(sqlCfg map[string]any, fallbackInstance string) HistoryAdapter {
	return HistoryAdapter{
		Name:     "sql",
		Enabled:  NormalizeEnabled(sqlCfg["enabled"]),
		Instance: firstNonEmpty(asString(sqlCfg["instance"]), fallbackInstance),
		Window:   time.Duration(intOr(sqlCfg["timeframeDays"], 7)) * 24 * time.Hour,
		Step:     time.Duration(intOr(sqlCfg["resolutionMinutes"], 60)) * time.Minute,
		Points:   normalizeHistoryPoints(sqlCfg["dataPoints"]),
	}
}

func normalizeHistoryPoints(raw any) []HistoryPoint {
	list := asSlice(raw)
	points := make([]HistoryPoint, 0, len(list))
	for _, item := range list {
		entry := asMap(item)
		if entry == nil {
			continue
		}
		id := NormalizeObjectID(entry["id"])
		if id == "" {
			id = NormalizeObjectID(entry["objectId"])
		}
		if id == "" {
			continue
		}
		points = append(points, HistoryPoint{ID: id, Role: asString(entry["role"])})
	}
	if len(points) == 0 {
		return nil
	}
	return points
}

func normalizeTelegram(telegram map[string]any) TelegramConfig {
	cfg := TelegramConfig{
		Enabled:  telegram["enabled"] == true,
		Instance: asString(telegram["instance"]),
	}

	for _, item := range asSlice(telegram["recipients"]) {
		var recipient string
		switch r := item.(type) {
		case string:
			recipient = strings.TrimSpace(r)
		case map[string]any:
			for _, key := range []string{"id", "chatId", "value"} {
				if v, ok := r[key]; ok && v != nil {
					if s, ok := scalarString(v); ok {
						recipient = strings.TrimSpace(s)
					}
					break
				}
			}
		}
		if recipient != "" {
			cfg.Recipients = append(cfg.Recipients, recipient)
		}
	}

	return cfg
}

func normalizeScheduler(scheduler map[string]any) SchedulerConfig {
	return SchedulerConfig{
		Enabled:  scheduler["enabled"] == true,
		Time:     firstNonEmpty(asString(scheduler["time"]), "08:00"),
		Days:     firstNonEmpty(asString(scheduler["days"]), "mon,tue,wed,thu,fri,sat,sun"),
		Timezone: firstNonEmpty(asString(scheduler["timezone"]), "UTC"),
	}
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func asSlice(value any) []any {
	s, _ := value.([]any)
	return s
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

// scalarString renders a scalar as text the way a form field would. Empty
// strings, zero numbers and false report not-ok so callers can fall through.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), v != 0
	case int:
		return strconv.Itoa(v), v != 0
	case bool:
		return strconv.FormatBool(v), v
	}
	return "", false
}

func durationOr(value any, fallback time.Duration) time.Duration {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return time.Duration(v)
		}
	case int64:
		if v > 0 {
			return time.Duration(v)
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intOr(value any, fallback int) int {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
