package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "memory-agent "+Version+"\n", out)
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name           string
		record         string
		wantCategories []string
		wantMatched    map[string][]string
		wantFocus      string
		wantEvent      bool
	}{
		{
			name:           "scheduling",
			record:         `{"summary":"Standup at 10"}`,
			wantCategories: []string{"scheduling-intent"},
			wantEvent:      true,
		},
		{
			name:           "goal",
			record:         `{"rawText":"I want to get better at golf"}`,
			wantCategories: []string{"goal-intent"},
			wantFocus:      "golf",
		},
		{
			name:           "both",
			record:         `{"summary":"Call coach","rawText":"plan to practice chess. Session on 2024-05-01"}`,
			wantCategories: []string{"scheduling-intent", "goal-intent"},
			wantMatched:    map[string][]string{"scheduling-intent": {"call"}, "goal-intent": {"practice", "plan to"}},
			wantFocus:      "chess",
			wantEvent:      true,
		},
		{
			name:           "none",
			record:         `{"summary":"Bought groceries"}`,
			wantCategories: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.record, "classify")
			require.NoError(t, err)

			var report classifyReport
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.Equal(t, tt.wantCategories, report.Categories)
			if tt.wantMatched != nil {
				assert.Equal(t, tt.wantMatched, report.Matched)
			}
			assert.Equal(t, tt.wantFocus, report.GoalFocus)
			assert.Equal(t, tt.wantEvent, report.Event != nil)
			if tt.wantFocus != "" {
				require.NotNil(t, report.GoalPlan)
				assert.True(t, report.GoalPlan.HasGoal)
				assert.NotEmpty(t, report.GoalPlan.Suggestions)
			}
		})
	}
}

func TestClassifyCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":"Interview on 2024-06-10 15:30"}`), 0o644))

	out, err := execute(t, "", "classify", path)
	require.NoError(t, err)

	var report classifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"meeting_to_google_calendar"}, report.Actions)
	assert.Equal(t, map[string][]string{"scheduling-intent": {"interview"}}, report.Matched)
}

func TestClassifyCommandRejectsInvalidJSON(t *testing.T) {
	_, err := execute(t, "not json", "classify", "-")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing checkpoint", func(t *testing.T) {
		path := filepath.Join(dir, "missing.json")
		out, err := execute(t, "", "status", "--state-file", path)
		require.NoError(t, err)

		var report statusReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.False(t, report.Initialized)
		assert.Equal(t, path, report.Path)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "status must not create the checkpoint")
	})

	t.Run("existing checkpoint", func(t *testing.T) {
		path := filepath.Join(dir, "state.json")
		store := checkpoint.New(checkpoint.Options{Path: path, Mode: checkpoint.StartReplayHistory})
		_, err := store.Load()
		require.NoError(t, err)
		for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
			store.RecordSeen(id, float64(1714557600000+i))
		}
		require.NoError(t, store.Persist())

		out, err := execute(t, "", "status", "--state-file", path)
		require.NoError(t, err)

		var report statusReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Initialized)
		assert.Equal(t, float64(1714557600005), report.Watermark)
		assert.Equal(t, "2024-05-01T10:00:00Z", report.WatermarkAt)
		assert.Equal(t, 6, report.SeenCount)
		assert.Equal(t, []string{"f", "e", "d", "c", "b"}, report.RecentIDs)
	})
}

func TestPrintStatusNotInitialized(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, statusReport{Path: "state.json"})
	assert.Contains(t, buf.String(), "not initialized")
}

func TestRunRequiresBaseURL(t *testing.T) {
	t.Setenv("CONVEX_SITE_URL", "")
	t.Setenv("NEXT_PUBLIC_CONVEX_SITE_URL", "")
	t.Setenv("AGENT_CONFIG", "")

	_, err := execute(t, "", "run", "--once")
	assert.ErrorIs(t, err, config.ErrMissingBaseURL)
}

func TestRunOnceProcessesBacklog(t *testing.T) {
	var (
		mu      sync.Mutex
		logged  []map[string]any
		fetches []float64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/memories/since":
			var req struct {
				Since float64 `json:"since"`
				Limit int     `json:"limit"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			fetches = append(fetches, req.Since)
			mu.Unlock()
			if req.Since >= 2000 {
				_, _ = io.WriteString(w, `{"memories":[]}`)
				return
			}
			_, _ = io.WriteString(w, `{"memories":[
				{"_id":"m1","createdAt":1000,"summary":"Standup","rawText":"Standup 2024-05-01 10:00"},
				{"_id":"m2","createdAt":2000,"summary":"Golf","rawText":"I want to get better at golf"}
			]}`)
		case "/agent-actions/log":
			var entry map[string]any
			_ = json.NewDecoder(r.Body).Decode(&entry)
			mu.Lock()
			logged = append(logged, entry)
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	icsDir := filepath.Join(dir, "invites")
	t.Setenv("AGENT_CONFIG", "")
	t.Setenv("CONVEX_SITE_URL", srv.URL+"/")
	t.Setenv("AGENT_STATE_FILE", statePath)
	t.Setenv("AGENT_ICS_DIR", icsDir)
	t.Setenv("AGENT_OPEN_BROWSER", "false")
	t.Setenv("AGENT_LOG_FILE", filepath.Join(dir, "agent.log"))
	t.Setenv("AGENT_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := execute(t, "", "run", "--once", "--backfill")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0}, fetches)
	require.Len(t, logged, 2)
	assert.Equal(t, "meeting_to_google_calendar", logged[0]["actionType"])
	assert.Equal(t, "success", logged[0]["status"])
	assert.Equal(t, "m1", logged[0]["memoryId"])
	assert.Equal(t, "goal_coaching_suggestions", logged[1]["actionType"])
	details, ok := logged[1]["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fallback", details["source"])
	assert.Equal(t, "golf", details["goal"])

	entries, err := os.ReadDir(icsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_Standup.ics"))

	st, ok, err := checkpoint.Inspect(statePath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(2000), st.Watermark)
	assert.Equal(t, []string{"m1", "m2"}, st.SeenIDs)
}

func TestLastN(t *testing.T) {
	assert.Equal(t, []string{}, lastN(nil, 5))
	assert.Equal(t, []string{"b", "a"}, lastN([]string{"a", "b"}, 5))
	assert.Equal(t, []string{"c", "b"}, lastN([]string{"a", "b", "c"}, 2))
}
