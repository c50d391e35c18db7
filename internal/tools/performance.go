package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

type performanceResourceFilter struct {
	ResourceType  []string `json:"resource_type,omitempty"`
	MinDurationMS *float64 `json:"min_duration_ms,omitempty"`
	MaxDurationMS *float64 `json:"max_duration_ms,omitempty"`
	URLPattern    string   `json:"url_pattern,omitempty"`
}

type performanceMetricsParams struct {
	WindowLabel       string                     `json:"window_label,omitempty"`
	IncludeNavigation *bool                      `json:"include_navigation,omitempty"`
	IncludeResources  *bool                      `json:"include_resources,omitempty"`
	IncludeUserTiming *bool                      `json:"include_user_timing,omitempty"`
	IncludeMemory     *bool                      `json:"include_memory,omitempty"`
	IncludeLongTasks  *bool                      `json:"include_long_tasks,omitempty"`
	ResourceFilter    *performanceResourceFilter `json:"resource_filter,omitempty"`
}

func (t *toolset) getPerformanceMetrics(ctx context.Context, params json.RawMessage) (any, error) {
	var p performanceMetricsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	code := buildPerformanceScript(
		boolOrTrue(p.IncludeNavigation),
		boolOrTrue(p.IncludeResources),
		boolOrTrue(p.IncludeUserTiming),
		boolOrTrue(p.IncludeMemory),
		p.IncludeLongTasks != nil && *p.IncludeLongTasks,
		p.ResourceFilter,
	)

	result, err := t.deps.Host.ExecuteJS(ctx, code)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(result)) {
		return nil, host.NewError(host.CodeEvalFailure, "performance metrics returned malformed data", nil)
	}
	return json.RawMessage(result), nil
}

func boolOrTrue(b *bool) bool { return b == nil || *b }

// buildPerformanceScript assembles the in-page collection script. Each
// section is independent; a failing section records into errors instead of
// aborting the whole collection.
func buildPerformanceScript(navigation, resources, userTiming, memory, longTasks bool, filter *performanceResourceFilter) string {
	var b strings.Builder
	b.WriteString(`(() => {
const metrics = {};
const errors = [];
const safeEntries = (type) => {
  try { return performance.getEntriesByType(type); }
  catch (e) { errors.push(type + ' entries: ' + e.message); return []; }
};
`)

	if navigation {
		b.WriteString(`try {
  const t = performance.timing;
  const start = t.navigationStart;
  metrics.navigation_timing = {
    dns_lookup_ms: t.domainLookupEnd - t.domainLookupStart,
    tcp_connection_ms: t.connectEnd - t.connectStart,
    request_time_ms: t.responseStart - t.requestStart,
    response_time_ms: t.responseEnd - t.responseStart,
    dom_interactive_ms: t.domInteractive - start,
    dom_complete_ms: t.domComplete - start,
    page_load_ms: t.loadEventEnd - start,
    redirect_ms: t.redirectEnd - t.redirectStart,
    first_paint_ms: (() => {
      try {
        const p = performance.getEntriesByType('paint').find(e => e.name === 'first-paint');
        return p ? p.startTime : null;
      } catch (e) { return null; }
    })()
  };
  const nav = safeEntries('navigation');
  if (nav.length > 0) {
    metrics.navigation_timing_v2 = {
      transfer_size: nav[0].transferSize || 0,
      encoded_body_size: nav[0].encodedBodySize || 0,
      decoded_body_size: nav[0].decodedBodySize || 0
    };
  }
} catch (e) { errors.push('navigation timing: ' + e.message); }
`)
	}

	if resources {
		b.WriteString("try {\n")
		b.WriteString(resourceFilterPreamble(filter))
		b.WriteString(`const byType = {};
const all = [];
safeEntries('resource').forEach(r => {
  const type = r.initiatorType || 'other';
  const duration = r.responseEnd - r.startTime;
  if (typeFilter.length > 0 && !typeFilter.includes(type)) return;
  if (duration < minDuration || duration > maxDuration) return;
  if (urlPattern && !r.name.includes(urlPattern)) return;
  const entry = {
    name: r.name,
    type: type,
    start_time_ms: r.startTime,
    duration_ms: duration,
    transfer_size: r.transferSize || 0,
    encoded_body_size: r.encodedBodySize || 0,
    decoded_body_size: r.decodedBodySize || 0,
    cache_behavior: (r.transferSize === 0 && r.decodedBodySize > 0) ? 'cached' : 'network'
  };
  (byType[type] = byType[type] || []).push(entry);
  all.push(entry);
});
metrics.resource_timing = {
  by_type: byType,
  summary: {
    total_resources: all.length,
    total_duration_ms: all.reduce((sum, r) => sum + r.duration_ms, 0),
    cached_resources: all.filter(r => r.cache_behavior === 'cached').length,
    network_resources: all.filter(r => r.cache_behavior === 'network').length
  },
  resources: all.slice(0, 100)
};
} catch (e) { errors.push('resource timing: ' + e.message); }
`)
	}

	if userTiming {
		b.WriteString(`try {
  metrics.user_timing = {
    marks: safeEntries('mark').map(m => ({
      name: m.name, start_time_ms: m.startTime, duration_ms: 0
    })).slice(0, 100),
    measures: safeEntries('measure').map(m => ({
      name: m.name, start_time_ms: m.startTime, duration_ms: m.duration
    })).slice(0, 100)
  };
} catch (e) { errors.push('user timing: ' + e.message); }
`)
	}

	if memory {
		b.WriteString(`try {
  if (performance.memory) {
    const m = performance.memory;
    metrics.memory_usage = {
      js_heap_size_limit_bytes: m.jsHeapSizeLimit,
      total_js_heap_size_bytes: m.totalJSHeapSize,
      used_js_heap_size_bytes: m.usedJSHeapSize,
      available_bytes: m.jsHeapSizeLimit - m.usedJSHeapSize
    };
  } else {
    metrics.memory_usage = { available: false, reason: 'performance.memory API not available' };
  }
} catch (e) { errors.push('memory usage: ' + e.message); }
`)
	}

	if longTasks {
		b.WriteString(`try {
  const tasks = safeEntries('longtask').filter(e => e.duration > 50);
  metrics.long_tasks = {
    count: tasks.length,
    tasks: tasks.map(e => ({
      start_time_ms: e.startTime,
      duration_ms: e.duration,
      name: e.name
    })).slice(0, 100)
  };
} catch (e) { errors.push('long tasks: ' + e.message); }
`)
	}

	b.WriteString(`metrics.errors = errors;
metrics.collected_at_ms = Date.now();
return metrics;
})()`)
	return b.String()
}

func resourceFilterPreamble(filter *performanceResourceFilter) string {
	typeFilter := "[]"
	minDuration := "0"
	maxDuration := "Infinity"
	urlPattern := `""`
	if filter != nil {
		if len(filter.ResourceType) > 0 {
			encoded, _ := json.Marshal(filter.ResourceType)
			typeFilter = string(encoded)
		}
		if filter.MinDurationMS != nil {
			minDuration = fmt.Sprintf("%g", *filter.MinDurationMS)
		}
		if filter.MaxDurationMS != nil {
			maxDuration = fmt.Sprintf("%g", *filter.MaxDurationMS)
		}
		if filter.URLPattern != "" {
			urlPattern = jsString(filter.URLPattern)
		}
	}
	return fmt.Sprintf("const typeFilter = %s;\nconst minDuration = %s;\nconst maxDuration = %s;\nconst urlPattern = %s;\n",
		typeFilter, minDuration, maxDuration, urlPattern)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
