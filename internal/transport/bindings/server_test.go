package bindings

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"buildingheight.ai/internal/bindingproto"
	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/stats"
)

var tower = host.Entity{Index: 42, Version: 1}

func towerSnapshot() stats.Snapshot {
	return stats.Snapshot{
		Stats: stats.BuildingStats{
			Entity:              tower,
			HeightFeet:          98.4252,
			Floors:              7,
			FootprintCells:      15,
			FootprintWidthCells: 5,
			FootprintDepthCells: 3,
			FootprintAcres:      960 / 4046.8564224,
			BaseElevationFeet:   39.37008,
			HasData:             true,
		},
		Layout: stats.LayoutLevel,
	}
}

type fakeSelector struct {
	selected host.Entity
	cleared  bool
}

func (f *fakeSelector) Resolve(ref string) (host.Entity, error) {
	if ref == "tower" {
		return tower, nil
	}
	return host.ParseEntity(ref)
}

func (f *fakeSelector) Select(e host.Entity) error {
	if !e.IsNull() && e != tower {
		return errors.New("unknown entity")
	}
	f.selected = e
	return nil
}

func (f *fakeSelector) ClearSelection() { f.cleared = true }

type harness struct {
	srv   *Server
	state *stats.State
	store *settings.Store
	sel   *fakeSelector
	ts    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		state: stats.NewState(),
		store: settings.NewStore(settings.Defaults(), nil),
		sel:   &fakeSelector{},
	}
	h.srv = NewServer(Config{
		State:    h.state,
		Settings: h.store,
		Selector: h.sel,
		Logger:   logging.New(io.Discard, "error", "text"),
	})
	mux := http.NewServeMux()
	h.srv.Register(mux)
	h.ts = httptest.NewServer(mux)
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/v1/bindings/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	sub := bindingproto.SubscribeMsg{Type: bindingproto.TypeSubscribe, ProtocolVersion: bindingproto.Version}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func readBindings(t *testing.T, conn *websocket.Conn) bindingproto.BindingsMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg bindingproto.BindingsMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != bindingproto.TypeBindings || msg.Group != bindingproto.Group {
		t.Fatalf("unexpected message: %+v", msg)
	}
	return msg
}

func TestBootstrapAndValueGetters(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/v1/bindings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var boot bindingproto.BootstrapResponse
	if err := json.Unmarshal(body, &boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Values.StatsText != "" || boot.Values.LayoutKind != "" || boot.ProtocolVersion != bindingproto.Version {
		t.Fatalf("empty state bootstrap: %+v", boot)
	}

	h.state.Publish(towerSnapshot())
	resp, body = h.do(t, http.MethodGet, "/v1/bindings/statsText", "")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("statsText: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if want := stats.Format(towerSnapshot().Stats, settings.Feet); string(body) != want {
		t.Fatalf("statsText %q want %q", body, want)
	}
	_, body = h.do(t, http.MethodGet, "/v1/bindings/layoutKind", "")
	if string(body) != "Level" {
		t.Fatalf("layoutKind %q", body)
	}
	resp, _ = h.do(t, http.MethodGet, "/v1/bindings/floors", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown binding status %d", resp.StatusCode)
	}
	resp, _ = h.do(t, http.MethodPost, "/v1/bindings", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST bootstrap status %d", resp.StatusCode)
	}
}

func TestWS_PushesOnSubscribeAndChange(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	first := readBindings(t, conn)
	if first.Values.StatsText != "" {
		t.Fatalf("initial push should be empty: %+v", first)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.srv.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := h.state.Publish(towerSnapshot())
	if !h.srv.Publish() {
		t.Fatalf("changed values should publish")
	}
	if h.srv.Publish() {
		t.Fatalf("unchanged values should not publish again")
	}
	got := readBindings(t, conn)
	if got.Seq != snap.Seq || got.Values.LayoutKind != "Level" || !strings.HasPrefix(got.Values.StatsText, "Height: 98.4 ft\n") {
		t.Fatalf("update: %+v", got)
	}

	// A unit change re-renders the same snapshot and pushes it.
	resp, _ := h.do(t, http.MethodPut, "/admin/v1/settings", `{"height_unit":"metres"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put settings: %d", resp.StatusCode)
	}
	got = readBindings(t, conn)
	if !strings.HasPrefix(got.Values.StatsText, "Height: 30.0 m\n") {
		t.Fatalf("metric push: %q", got.Values.StatsText)
	}
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/v1/bindings/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO", "protocol_version": "0.1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestAdminSettings(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPut, "/admin/v1/settings", `{"height_unit":"meterz","sea_level_offset_meters":2500}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: %d %s", resp.StatusCode, body)
	}
	var got bindingproto.SettingsResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.HeightUnit != "Meters" || got.SeaLevelOffsetMeters != 1000 || got.SeaLevelOffsetFeet != "≈ 3280.8 ft" {
		t.Fatalf("settings: %+v", got)
	}
	if h.store.Settings().HeightUnit != settings.Meters {
		t.Fatalf("store not updated")
	}

	resp, _ = h.do(t, http.MethodPut, "/admin/v1/settings", `{"height_unit":"furlongs"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad unit status %d", resp.StatusCode)
	}

	resp, body = h.do(t, http.MethodPost, "/admin/v1/settings/reset", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.HeightUnit != "Feet" || got.SeaLevelOffsetMeters != 0 || h.store.Settings() != settings.Defaults() {
		t.Fatalf("reset: %+v", got)
	}
}

func TestAdminSelect(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/admin/v1/select", `{"entity":"tower"}`)
	if resp.StatusCode != http.StatusOK || h.sel.selected != tower {
		t.Fatalf("select: %d %s", resp.StatusCode, body)
	}
	var sr bindingproto.SelectResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.Entity != "42:1" {
		t.Fatalf("select response: %+v %v", sr, err)
	}
	resp, _ = h.do(t, http.MethodPost, "/admin/v1/select", `{"entity":"7:7"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown entity status %d", resp.StatusCode)
	}
	resp, _ = h.do(t, http.MethodPost, "/admin/v1/select", `{"clear":true}`)
	if resp.StatusCode != http.StatusOK || !h.sel.cleared {
		t.Fatalf("clear: %d", resp.StatusCode)
	}
}

func TestAdmin_LoopbackOnly(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		handler http.HandlerFunc
		method  string
	}{
		{h.srv.SettingsHandler(), http.MethodGet},
		{h.srv.SettingsResetHandler(), http.MethodPost},
		{h.srv.SelectHandler(), http.MethodPost},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, "/admin", bytes.NewReader(nil))
		req.RemoteAddr = "203.0.113.9:4567"
		rec := httptest.NewRecorder()
		c.handler(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s from remote: %d", c.method, rec.Code)
		}
	}
	if !isLoopbackRemote("[::1]:80") || !isLoopbackRemote("127.0.0.1:9") || isLoopbackRemote("10.0.0.1:9") {
		t.Fatalf("loopback detection")
	}
}
