package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisory.org/internal/auth"
	"advisory.org/internal/config"
	"advisory.org/internal/consult"
	"advisory.org/internal/store"
)

// seedRegion writes one advisor and one consultation into a fresh region file.
func seedRegion(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisory.region")
	ctx := context.Background()
	b, err := store.Open(ctx, config.RegionConfig{Backend: config.BackendFile, Path: path})
	require.NoError(t, err)
	st, err := b.OpenStore(ctx, 1)
	require.NoError(t, err)

	svc := consult.NewStable(st)
	owner := auth.ContextWithCaller(ctx, "owner-a")
	a, err := svc.AddAdvisor(owner, consult.AdvisorPayload{Name: "Amy", Credentials: "Bar#123"})
	require.NoError(t, err)
	_, err = svc.InitiateConsultation(owner, consult.ConsultationPayload{
		AdvisorID: a.ID, UserID: 7, ClientName: "Bo", ClientEmail: "bo@x.com", Details: "Need help",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Sync())
	require.NoError(t, b.Close())
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"stats", "dump", "schema", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestStatsJSON(t *testing.T) {
	path := seedRegion(t)
	out, err := run(t, "--region", path, "--format", "json", "stats")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   consult.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint32(consult.CurrentSchemaVersion), resp.Data.SchemaVersion)
	assert.Equal(t, uint64(1), resp.Data.LastAdvisorID)
	assert.Equal(t, uint64(1), resp.Data.LastConsultationID)
	assert.Equal(t, 1, resp.Data.Records["consultations"])
	assert.Equal(t, uint64(1), resp.Data.BucketPages)
}

func TestStatsText(t *testing.T) {
	path := seedRegion(t)
	out, err := run(t, "--region", path, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "last advisor id")
	assert.Contains(t, out, "consultation_ids")
}

func TestDumpPrintsJSONLines(t *testing.T) {
	path := seedRegion(t)
	out, err := run(t, "--region", path, "dump", "timeline")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var ev consult.TimelineEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "Consultation initiated", ev.Description)

	_, err = run(t, "--region", path, "dump", "invoices")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaText(t *testing.T) {
	path := seedRegion(t)
	out, err := run(t, "--region", path, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "yaml", "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ADVISORY_AUTH_SECRET", "cli-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	out, err := run(t, "token", "owner-a")
	require.NoError(t, err)
	claims, err := auth.ParseAndValidate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity("owner-a"), claims.Identity())

	_, err = run(t, "token", auth.Anonymous.String())
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
