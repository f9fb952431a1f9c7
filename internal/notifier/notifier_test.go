package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastMailer/internal/model"
)

func testDigest() *model.Digest {
	return &model.Digest{
		RunID:          "run-1",
		RunDate:        "Monday, March 2, 2026",
		RunTime:        "8:30:05 AM",
		MarketOpenTime: "9:30 AM EST",
		GeneratedAt:    time.Date(2026, time.March, 2, 13, 30, 5, 0, time.UTC),
		Results: []model.TickerResult{
			{
				Ticker: model.Ticker{Symbol: "AAPL", Name: "Apple"},
				Quote: model.NewQuoteSnapshot(decimal.NewFromInt(230), decimal.NewFromInt(228),
					decimal.NewNullDecimal(decimal.NewFromInt(260)), decimal.NullDecimal{}),
				Assessment: model.Assessment{
					Recommendation: model.Buy,
					PriceTarget:    model.PriceTarget{Low: decimal.NewFromInt(225), High: decimal.NewFromInt(240)},
					KeyInsight:     "Services growth <accelerating>",
				},
				Attempts: 1,
			},
			{
				Ticker: model.Ticker{Symbol: "MSFT", Name: "Microsoft"},
				Quote:  model.NewQuoteSnapshot(decimal.NewFromInt(95), decimal.NewFromInt(100), decimal.NullDecimal{}, decimal.NullDecimal{}),
				Assessment: model.Assessment{
					Recommendation: model.Hold,
					PriceTarget:    model.PriceTarget{Low: decimal.NewFromInt(90), High: decimal.NewFromInt(100)},
					KeyInsight:     "placeholder",
				},
				Attempts: 3,
				Degraded: true,
			},
		},
	}
}

type fakeNotifier struct {
	name  string
	err   error
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }
func (f *fakeNotifier) Deliver(context.Context, *model.Digest) error {
	f.calls++
	return f.err
}

type observed map[string]error

func (o observed) Delivery(channel string, err error) { o[channel] = err }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	a := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	b := &fakeNotifier{name: "telegram"}
	obs := observed{}

	err := NewMulti(obs, a, b).Deliver(context.Background(), testDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email: smtp down")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Error(t, obs["email"])
	assert.NoError(t, obs["telegram"])
}

func TestMulti_Empty(t *testing.T) {
	assert.Error(t, NewMulti(nil).Deliver(context.Background(), testDigest()))
}

func TestEmailNotifier_BuildMessage(t *testing.T) {
	e := NewEmailNotifier("smtp.example.com", 587, "bot@example.com", "pw", "", []string{"a@example.com", "b@example.com"}, zerolog.Nop())
	msg, err := e.BuildMessage(testDigest())
	require.NoError(t, err)
	s := string(msg)

	assert.Contains(t, s, "From: bot@example.com\r\n")
	assert.Contains(t, s, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, s, "Subject: Market Forecast Digest - Monday, March 2, 2026\r\n")
	assert.Contains(t, s, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, s, "text/plain; charset=UTF-8")
	assert.Contains(t, s, "text/html; charset=UTF-8")
	assert.Contains(t, s, "Services growth &lt;accelerating&gt;", "html part must escape insight")
	assert.Contains(t, s, "Services growth <accelerating>", "text part keeps insight verbatim")
	assert.Contains(t, s, Disclaimer)
}

func TestRenderText(t *testing.T) {
	text, err := RenderText(testDigest())
	require.NoError(t, err)

	assert.Contains(t, text, "Market Opens: 9:30 AM EST")
	assert.Contains(t, text, "Apple (AAPL)")
	assert.Contains(t, text, "Price: $230.00 (+0.88%)")
	assert.Contains(t, text, "52-week range: N/A - 260.00")
	assert.Contains(t, text, "Price target: $225.00 - 240.00")
	assert.Contains(t, text, "Price: $95.00 (-5.00%)")
	assert.Contains(t, text, "placeholder [degraded]")
}

func TestRenderHTML_Empty(t *testing.T) {
	d := testDigest()
	d.Results = nil
	out, err := RenderHTML(d)
	require.NoError(t, err)
	assert.Contains(t, out, "No market data could be retrieved")
	assert.Contains(t, out, "Disclaimer")
}

func TestEmailNotifier_Deliver(t *testing.T) {
	e := NewEmailNotifier("smtp.example.com", 465, "bot@example.com", "pw", "news@example.com", []string{"a@example.com"}, zerolog.Nop())

	var gotAddr, gotFrom string
	var gotTo []string
	e.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}
	require.NoError(t, e.Deliver(context.Background(), testDigest()))
	assert.Equal(t, "smtp.example.com:465", gotAddr)
	assert.Equal(t, "news@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com"}, gotTo)

	e.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	assert.ErrorContains(t, e.Deliver(context.Background(), testDigest()), "535 auth failed")
}

func TestFormatDigest(t *testing.T) {
	out := FormatDigest(testDigest())
	assert.Contains(t, out, "<b>Apple</b> (AAPL)")
	assert.Contains(t, out, "Price: $230.00 (+0.88%)")
	assert.Contains(t, out, "<b>BUY</b> | target $225.00 - 240.00")
	assert.Contains(t, out, "Services growth &lt;accelerating&gt;")
	assert.Contains(t, out, "placeholder ⚠️")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 100))

	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30) + "\n" + strings.Repeat("c", 30)
	chunks := SplitMessage(text, 40)
	assert.Equal(t, []string{strings.Repeat("a", 30), strings.Repeat("b", 30), strings.Repeat("c", 30)}, chunks)

	long := SplitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, long)
}

func TestSplitMessage_RuneBoundary(t *testing.T) {
	text := strings.Repeat("📈", 5)

	chunks := SplitMessage(text, 10)
	assert.Equal(t, []string{"📈📈", "📈📈", "📈"}, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %q", c)
	}

	assert.Len(t, SplitMessage(text, 2), 5, "limit below one rune still advances a rune at a time")
}

type telegramServer struct {
	mu    sync.Mutex
	texts []string
	fail  int
}

func (s *telegramServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]string
		assert.NoError(t, json.Unmarshal(raw, &body))

		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if s.fail > 0 {
			s.fail--
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"ok":false,"description":"bad gateway"}`))
			return
		}
		assert.Equal(t, "42", body["chat_id"])
		assert.Equal(t, "HTML", body["parse_mode"])
		s.texts = append(s.texts, body["text"])
		w.Write([]byte(`{"ok":true}`))
	}
}

func TestTelegramNotifier_Deliver(t *testing.T) {
	ts := &telegramServer{fail: 1}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	tn := NewTelegramNotifier(srv.URL, "TOKEN", "42", "", zerolog.Nop())
	tn.backoffUnit = time.Millisecond
	require.NoError(t, tn.Deliver(context.Background(), testDigest()))

	require.Len(t, ts.texts, 1)
	assert.Contains(t, ts.texts[0], "Market Forecast Digest")
}

func TestTelegramNotifier_RetriesExhausted(t *testing.T) {
	ts := &telegramServer{fail: 10}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	tn := NewTelegramNotifier(srv.URL, "TOKEN", "42", "", zerolog.Nop())
	tn.backoffUnit = time.Millisecond
	err := tn.SendWithRetry(context.Background(), "hi", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.Equal(t, 7, ts.fail)
}

func TestTelegramNotifier_Polling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var replies []string
	served := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			mu.Lock()
			first := !served
			served = true
			mu.Unlock()
			if first {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/status","chat":{"id":99}}},
					{"update_id":8,"message":{"text":" /status ","chat":{"id":42}}}
				]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case "/botTOKEN/sendMessage":
			var body map[string]string
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			w.Write([]byte(`{"ok":true}`))
			cancel()
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(srv.URL, "TOKEN", "42", "", zerolog.Nop())
	tn.backoffUnit = time.Millisecond

	var commands []string
	done := make(chan struct{})
	go func() {
		tn.StartPolling(ctx, 0, func(_ context.Context, cmd string) string {
			commands = append(commands, cmd)
			return "status ok"
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	assert.Equal(t, []string{"/status"}, commands, "commands from other chats are ignored")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"status ok"}, replies)
}
