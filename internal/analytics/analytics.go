package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"todo-assistant/internal/storage"
)

// DailyStats summarizes one day of recorded interactions.
type DailyStats struct {
	Date               string               `json:"date"`
	TotalMessages      int                  `json:"total_messages"`
	UniqueUsers        int                  `json:"unique_users"`
	ToolCallsRequested int                  `json:"tool_calls_requested"`
	ToolsByName        map[string]int       `json:"tools_by_name"`
	Approved           int                  `json:"approved"`
	Denied             int                  `json:"denied"`
	UserStats          map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID    string `json:"user_id"`
	Messages  int    `json:"messages"`
	ToolCalls int    `json:"tool_calls"`
	Approved  int    `json:"approved"`
	Denied    int    `json:"denied"`
}

// AnalyzeDailyLogs aggregates the events that fall on targetDate's day.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:        startOfDay.Format("2006-01-02"),
		ToolsByName: make(map[string]int),
		UserStats:   make(map[string]UserStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserID == "" {
			continue
		}

		userStat, exists := stats.UserStats[event.UserID]
		if !exists {
			userStat = UserStats{UserID: event.UserID}
		}

		if event.UserMessage != "" {
			stats.TotalMessages++
			userStat.Messages++
		}
		for _, name := range event.ToolCalls {
			stats.ToolCallsRequested++
			stats.ToolsByName[name]++
			userStat.ToolCalls++
		}
		if event.Approved != nil {
			if *event.Approved {
				stats.Approved++
				userStat.Approved++
			} else {
				stats.Denied++
				userStat.Denied++
			}
		}

		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

// GenerateReportSummary renders the stats as a short plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Todo assistant usage for %s:\n\n", ds.Date)
	fmt.Fprintf(&b, "- Messages: %d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "- Unique users: %d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "- Tool calls requested: %d (approved %d, denied %d)\n\n", ds.ToolCallsRequested, ds.Approved, ds.Denied)

	if len(ds.ToolsByName) > 0 {
		b.WriteString("Tools:\n")
		for _, name := range sortedKeys(ds.ToolsByName) {
			fmt.Fprintf(&b, "- %s: %d\n", name, ds.ToolsByName[name])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Users (%d):\n", len(ds.UserStats))
	users := make([]string, 0, len(ds.UserStats))
	for id := range ds.UserStats {
		users = append(users, id)
	}
	sort.Strings(users)
	for _, id := range users {
		u := ds.UserStats[id]
		fmt.Fprintf(&b, "- %s: %d message(s)", id, u.Messages)
		if u.ToolCalls > 0 {
			fmt.Fprintf(&b, ", %d tool call(s)", u.ToolCalls)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reporter writes the previous day's stats to Dir as <date>.json.
type Reporter struct {
	Recorder storage.Recorder
	Dir      string
	Now      func() time.Time
}

// Run is the scheduled daily report job. It reports on the day that just
// ended relative to Now.
func (r *Reporter) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	events, err := r.Recorder.LoadInteractions()
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}
	stats := AnalyzeDailyLogs(events, now().AddDate(0, 0, -1))
	body, err := stats.ToJSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}
	path := filepath.Join(r.Dir, stats.Date+".json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("📊 Daily report written to %s\n%s", path, stats.GenerateReportSummary())
	return nil
}
