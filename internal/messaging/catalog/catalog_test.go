package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	for _, key := range []string{
		"greeting.welcome", "greeting.restart", "clarify.initial",
		"schedule.ask_call_time", "schedule.ask_date", "schedule.ask_time", "schedule.unresolved",
		"schedule.past", "schedule.conflict", "schedule.confirm", "schedule.reconfirm",
		"schedule.booked", "schedule.booked_immediate", "schedule.reoffer",
		"reason.ask", "reason.thanks", "session.timeout", "session.optout", "errors.generic",
	} {
		assert.True(t, c.Has(key), key)
	}

	got := c.Get("schedule.confirm", map[string]string{"date": "03/06/2025", "time": "15:00"})
	assert.Equal(t, "Just to confirm: a call on 03/06/2025 at 15:00. Is that right?", got)
}

func TestGetFallbacks(t *testing.T) {
	c := Default()
	assert.Equal(t, Fallback, c.Get("no.such.key", nil))
	assert.Equal(t, Fallback, c.Get("schedule", nil), "branch keys are not templates")
	assert.Contains(t, c.Get("schedule.ask_date", map[string]string{"other": "x"}), "{time}")
}

func TestLoadOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reason:\n  thanks: \"Cheers, {name}!\"\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cheers, Sam!", c.Get("reason.thanks", map[string]string{"name": "Sam"}))
	assert.True(t, c.Has("reason.ask"))
}

func TestParseRejectsNonStrings(t *testing.T) {
	_, err := Parse([]byte("a:\n  b: [1, 2]\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
