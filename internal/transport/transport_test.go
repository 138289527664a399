// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"tuner/internal/detector"
	"tuner/internal/log"
	"tuner/internal/note"
	"tuner/pkg/utils"

	"github.com/gorilla/websocket"
)

var a4 = detector.Detection{Note: "A4", Frequency: 441, Confidence: 0.8, Deviation: 3.9, Status: note.Perfect, Volume: 0.2}

func TestFanout(t *testing.T) {
	failing := &utils.MockTransport{Err: errors.New("boom")}
	ok := &utils.MockTransport{}
	f := Fanout{failing, ok}

	msg := NewMessage(1, a4, true, detector.Tracking)
	if err := f.Send(msg); err == nil {
		t.Error("Send() should report the failing transport")
	}
	if got, _ := ok.Last().(Message); got.Detection != a4 {
		t.Errorf("second transport got %+v, want delivery despite the first failing", ok.Last())
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !ok.Closed || !failing.Closed {
		t.Error("Close() should reach every transport")
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(9, a4, true, detector.Tracking)
	if m.Sequence != 9 || !m.Detected || m.State != "tracking" || m.Detection != a4 {
		t.Errorf("NewMessage() = %+v", m)
	}
	if time.Since(m.Timestamp) > time.Second {
		t.Errorf("Timestamp = %v, want now", m.Timestamp)
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	prev := log.GetLevel()
	log.SetLevel(log.LevelInfo)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(prev)
	})

	lt := NewLoggingTransport()
	buf.Reset()

	_ = lt.Send(NewMessage(1, a4, true, detector.Tracking))
	_ = lt.Send(NewMessage(2, a4, true, detector.Tracking))
	if got := strings.Count(buf.String(), "A4"); got != 1 {
		t.Errorf("held note logged %d times, want once:\n%s", got, buf.String())
	}

	_ = lt.Send(NewMessage(3, detector.Detection{}, false, detector.Listening))
	if !strings.Contains(buf.String(), "listening") {
		t.Errorf("lost note not logged:\n%s", buf.String())
	}

	buf.Reset()
	_ = lt.Send(NewMessage(4, a4, true, detector.Tracking))
	if !strings.Contains(buf.String(), "441.0 Hz") || !strings.Contains(buf.String(), "+4¢") {
		t.Errorf("log line = %q", buf.String())
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := newWebSocketTransport("")
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	defer wst.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for wst.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if wst.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", wst.Clients())
	}

	if err := wst.Send(NewMessage(5, a4, true, detector.Tracking)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Sequence != 5 || !got.Detected || got.Detection != a4 {
		t.Errorf("received %+v, want %+v", got, a4)
	}

	if err := wst.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := wst.Send(got); err == nil {
		t.Error("Send() after Close should fail")
	}
}
