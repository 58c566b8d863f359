package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ChainSafe/log15"
	"github.com/wrapgate/bridge/internal/config"
)

// Sink surfaces transfer progress and errors to the caller. Severe alerts are
// the ones that need a human: ledger and chain state have diverged.
type Sink interface {
	Progress(stage string, ctx ...interface{})
	Alert(ctx context.Context, msg string)
}

var (
	env   = ""
	muted = make(map[string]int64)
)

func init() {
	env = os.Getenv("bridge_env")
}

// LogSink reports progress through the logger only. Default for library use
// and tests.
type LogSink struct {
	Log log15.Logger
}

func (s *LogSink) Progress(stage string, ctx ...interface{}) {
	s.Log.Info(stage, ctx...)
}

func (s *LogSink) Alert(_ context.Context, msg string) {
	s.Log.Error(msg)
}

// WebhookSink additionally posts severe alerts to a hooks url, muting repeats
// of the same message inside the mute window.
type WebhookSink struct {
	Log log15.Logger
}

func (s *WebhookSink) Progress(stage string, ctx ...interface{}) {
	s.Log.Info(stage, ctx...)
}

func (s *WebhookSink) Alert(ctx context.Context, msg string) {
	s.Log.Error(msg)

	hooksUrl := os.Getenv("hooks")
	if hooksUrl == "" {
		s.Log.Info("hooks is empty")
		return
	}
	if v, ok := muted[msg]; ok {
		if time.Now().Unix()-v < int64(config.NotifyMuteWindow.Seconds()) {
			return
		}
	}
	muted[msg] = time.Now().Unix()

	body, err := json.Marshal(map[string]interface{}{
		"text": fmt.Sprintf("%s %s", env, msg),
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, "POST", hooksUrl, io.NopCloser(bytes.NewReader(body)))
	if err != nil {
		return
	}
	req.Header.Set("Content-type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.Log.Warn("read resp failed", "err", err)
		return
	}
	s.Log.Info("send alert message", "resp", string(data))
}
