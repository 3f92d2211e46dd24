package console

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagkeep/coordinator"
	"tagkeep/registry"
	"tagkeep/uid"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type stubBackend struct {
	submitted []coordinator.Request
	submitErr error
	deleted   []uid.ID
	deleteErr error
	entries   []registry.Entry
	status    coordinator.Status
}

func (s *stubBackend) Submit(_ context.Context, req coordinator.Request) (uuid.UUID, error) {
	if s.submitErr != nil {
		return uuid.Nil, s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return uuid.New(), nil
}

func (s *stubBackend) Delete(_ context.Context, id uid.ID) (registry.Entry, error) {
	if s.deleteErr != nil {
		return registry.Entry{}, s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return registry.Entry{Slot: 3, Record: registry.Record{ID: id, Label: "Keys", Active: true}}, nil
}

func (s *stubBackend) List(context.Context) ([]registry.Entry, error) {
	return s.entries, nil
}

func (s *stubBackend) Status(context.Context) (coordinator.Status, error) {
	return s.status, nil
}

func newTestConsole(t *testing.T, b Backend) (*Console, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c, err := New(Config{}, b, strings.NewReader(""), &out)
	require.NoError(t, err)
	return c, &out
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{line: "register House Keys", want: Command{Name: "register", Arg: "House Keys"}},
		{line: "  REGISTER   Keys  ", want: Command{Name: "register", Arg: "Keys"}},
		{line: "identify", want: Command{Name: "identify"}},
		{line: "id", want: Command{Name: "identify"}},
		{line: "rename Badge", want: Command{Name: "rename", Arg: "Badge"}},
		{line: "list", want: Command{Name: "list"}},
		{line: "delete AA:BB:CC:DD", want: Command{Name: "delete", Arg: "AA:BB:CC:DD"}},
		{line: "status", want: Command{Name: "status"}},
		{line: "help", want: Command{Name: "help"}},
		{line: "register", wantErr: true},
		{line: "rename   ", wantErr: true},
		{line: "delete", wantErr: true},
		{line: "open door", wantErr: true},
		{line: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLine(tt.line)
		if tt.wantErr {
			assert.Error(t, err, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestExec_Submit(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	c, out := newTestConsole(t, b)
	ctx := context.Background()

	c.Exec(ctx, "register House Keys")
	c.Exec(ctx, "identify")
	c.Exec(ctx, "rename Badge")
	c.Exec(ctx, "# comment")
	c.Exec(ctx, "")

	require.Len(t, b.submitted, 3)
	assert.Equal(t, coordinator.Request{Intent: coordinator.IntentRegister, Label: "House Keys", Origin: coordinator.OriginConsole}, b.submitted[0])
	assert.Equal(t, coordinator.IntentIdentify, b.submitted[1].Intent)
	assert.Equal(t, coordinator.IntentRename, b.submitted[2].Intent)
	assert.Contains(t, out.String(), `Present card to register as "House Keys"`)
	assert.Contains(t, out.String(), "Present card to identify")
}

func TestExec_SubmitErrors(t *testing.T) {
	t.Parallel()
	b := &stubBackend{submitErr: coordinator.ErrBusy}
	c, out := newTestConsole(t, b)

	c.Exec(context.Background(), "identify")
	assert.Contains(t, out.String(), "Busy")

	b.submitErr = registry.ErrInvalidLabel
	c.Exec(context.Background(), "register x")
	assert.Contains(t, out.String(), "Invalid label")

	c.Exec(context.Background(), "fly")
	assert.Contains(t, out.String(), "unknown command: fly")
}

func TestExec_List(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	c, out := newTestConsole(t, b)

	c.Exec(context.Background(), "list")
	assert.Contains(t, out.String(), "No items registered")

	b.entries = []registry.Entry{
		{Slot: 0, Record: registry.Record{ID: uid.MustParse("AA:BB:CC:DD"), Label: "Keys", Active: true}},
		{Slot: 2, Record: registry.Record{ID: uid.MustParse("01:02:03:04:05:06:07"), Label: "Badge", Active: true}},
	}
	out.Reset()
	c.Exec(context.Background(), "list")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2 item(s):", lines[0])
	assert.Contains(t, lines[1], "AA:BB:CC:DD")
	assert.Contains(t, lines[1], "Keys")
	assert.Contains(t, lines[2], "Badge")
}

func TestExec_Delete(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	c, out := newTestConsole(t, b)

	c.Exec(context.Background(), "delete aa:bb:cc:dd")
	require.Len(t, b.deleted, 1)
	assert.Equal(t, uid.MustParse("AA:BB:CC:DD"), b.deleted[0])
	assert.Contains(t, out.String(), `Deleted "Keys" (AA:BB:CC:DD)`)

	c.Exec(context.Background(), "delete AA:BB")
	assert.Contains(t, out.String(), "Invalid identifier")
	assert.Len(t, b.deleted, 1)

	b.deleteErr = registry.ErrNotFound
	c.Exec(context.Background(), "delete 01:02:03:04")
	assert.Contains(t, out.String(), "No item with identifier 01:02:03:04")
}

func TestExec_Status(t *testing.T) {
	t.Parallel()
	b := &stubBackend{status: coordinator.Status{
		Mode:     coordinator.IntentIdentify,
		Pending:  &coordinator.Pending{Request: coordinator.Request{Intent: coordinator.IntentIdentify, Origin: coordinator.OriginHTTP}, Remaining: 8 * time.Second},
		Total:    4,
		Capacity: 50,
		LastItem: "Keys",
	}}
	c, out := newTestConsole(t, b)

	c.Exec(context.Background(), "status")
	assert.Contains(t, out.String(), "awaiting card for identify (http), 8s left")
	assert.Contains(t, out.String(), "Items: 4/50")
	assert.Contains(t, out.String(), "Last item: Keys")
}

func TestFinished(t *testing.T) {
	t.Parallel()
	c, out := newTestConsole(t, &stubBackend{})
	id := uid.MustParse("AA:BB:CC:DD")

	c.Finished(coordinator.Event{Origin: coordinator.OriginHTTP, Intent: coordinator.IntentIdentify, Outcome: coordinator.Timeout})
	assert.Empty(t, out.String())

	tests := []struct {
		ev   coordinator.Event
		want string
	}{
		{
			ev:   coordinator.Event{Intent: coordinator.IntentRegister, Outcome: coordinator.Success, Entry: registry.Entry{Record: registry.Record{ID: id, Label: "Keys"}}},
			want: `Registered AA:BB:CC:DD as "Keys"`,
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentIdentify, Outcome: coordinator.Success, Entry: registry.Entry{Record: registry.Record{ID: id, Label: "Keys"}}},
			want: "Identified AA:BB:CC:DD: Keys",
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentIdentify, Outcome: coordinator.NotFound, Entry: registry.Entry{Record: registry.Record{ID: id}}},
			want: "Card AA:BB:CC:DD is not registered",
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentRegister, Outcome: coordinator.AlreadyRegistered, Entry: registry.Entry{Record: registry.Record{ID: id, Label: "Keys"}}},
			want: `already registered as "Keys"`,
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentRename, Outcome: coordinator.Timeout},
			want: "Timed out",
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentRegister, Outcome: coordinator.Rejected, Err: registry.ErrFull},
			want: "Rejected: registry full",
		},
		{
			ev:   coordinator.Event{Intent: coordinator.IntentRegister, Outcome: coordinator.PersistenceFailed, Err: errors.New("erase failed")},
			want: "Could not save registry: erase failed",
		},
	}
	for _, tt := range tests {
		out.Reset()
		tt.ev.Origin = coordinator.OriginConsole
		c.Finished(tt.ev)
		assert.Contains(t, out.String(), tt.want)
	}
}

func TestRun_Reader(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	var out bytes.Buffer
	c, err := New(Config{}, b, strings.NewReader("identify\nregister Keys\n"), &out)
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, b.submitted, 2)
	assert.Contains(t, out.String(), "Type 'help' for commands")
}
