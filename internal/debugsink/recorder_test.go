package debugsink

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/impedance/internal/signal"
)

func ramp(start float64, n int) []signal.Sample {
	out := make([]signal.Sample, n)
	for i := range out {
		out[i] = signal.Sample{Timestamp: start + float64(i), Value: float64(i)}
	}
	return out
}

func TestNewRecorder_InvalidRetention(t *testing.T) {
	_, err := NewRecorder(0)
	assert.True(t, errors.Is(err, signal.ErrInvalidArgument))
}

func TestRecorder_EmitAndReset(t *testing.T) {
	r, err := NewRecorder(DefaultRetention)
	require.NoError(t, err)

	r.Emit(LabelWindow, ramp(0, 5), true)
	r.Emit(LabelVAE, ramp(0, 1), false)
	assert.Equal(t, []string{LabelVAE, LabelWindow}, r.Labels())
	assert.Len(t, r.Series(LabelWindow), 5)

	// a reset replaces the window, even with earlier timestamps
	r.Emit(LabelWindow, ramp(-10, 3), true)
	got := r.Series(LabelWindow)
	require.Len(t, got, 3)
	assert.Equal(t, -10.0, got[0].Timestamp)
	assert.Zero(t, r.Dropped(LabelWindow))
}

func TestRecorder_DropsStaleSamples(t *testing.T) {
	r, err := NewRecorder(DefaultRetention)
	require.NoError(t, err)

	r.Emit(LabelEEI, ramp(10, 3), false)
	r.Emit(LabelEEI, []signal.Sample{{Timestamp: 11, Value: 99}, {Timestamp: 20, Value: 1}}, false)

	got := r.Series(LabelEEI)
	require.Len(t, got, 4)
	assert.Equal(t, 20.0, got[3].Timestamp)
	assert.Equal(t, 1, r.Dropped(LabelEEI))
	assert.Nil(t, r.Series("missing"))
}

func TestRecorder_Retention(t *testing.T) {
	r, err := NewRecorder(10)
	require.NoError(t, err)
	r.Emit(LabelSQI, ramp(0, 30), false)
	got := r.Series(LabelSQI)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, got[len(got)-1].Timestamp-got[0].Timestamp, 10.0)
}

func TestRecorder_ConcurrentReaders(t *testing.T) {
	r, err := NewRecorder(DefaultRetention)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Emit(LabelVAE, []signal.Sample{{Timestamp: float64(i), Value: 1}}, false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = r.Series(LabelVAE)
			_ = r.Labels()
		}
	}()
	wg.Wait()
	assert.Len(t, r.Series(LabelVAE), 200)
}

func TestSinkFuncAndDiscard(t *testing.T) {
	var got []string
	var s Sink = SinkFunc(func(label string, samples []signal.Sample, resetFirst bool) {
		got = append(got, label)
	})
	s.Emit(LabelSQI, nil, false)
	Discard.Emit(LabelSQI, ramp(0, 2), true)
	assert.Equal(t, []string{LabelSQI}, got)
}

func TestRecorder_SavePlots(t *testing.T) {
	r, err := NewRecorder(DefaultRetention)
	require.NoError(t, err)
	r.Emit(LabelWindow, ramp(0, 50), true)
	r.Emit(LabelVAE, ramp(0, 5), false)
	r.Emit(LabelSQI, nil, false)

	dir := filepath.Join(t.TempDir(), "plots")
	n, err := r.SavePlots(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, name := range []string{"window.png", "vae.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

// localHostRequest bypasses tsweb.AllowDebugAccess, which only admits loopback
// callers.
func localHostRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachDebugRoutes(t *testing.T) {
	r, err := NewRecorder(DefaultRetention)
	require.NoError(t, err)
	r.Emit(LabelWindow, ramp(0, 10), true)
	r.Emit(LabelVAE, []signal.Sample{{Timestamp: 20, Value: 42, Annotation: "pass"}}, false)

	mux := http.NewServeMux()
	AttachDebugRoutes(mux, r, func() interface{} { return map[string]int{"vae": 42} })

	t.Run("charts", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest("/debug/impedance-charts"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.True(t, strings.Contains(w.Body.String(), "echarts"))
	})

	t.Run("series", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest("/debug/impedance-series?label=vae"))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Label   string `json:"label"`
			Samples []struct {
				T          float64 `json:"t"`
				V          float64 `json:"v"`
				Annotation string  `json:"annotation"`
			} `json:"samples"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "vae", body.Label)
		require.Len(t, body.Samples, 1)
		assert.Equal(t, 42.0, body.Samples[0].V)
		assert.Equal(t, "pass", body.Samples[0].Annotation)
	})

	t.Run("unknown series", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest("/debug/impedance-series?label=nope"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest("/debug/impedance-status"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"vae":42}`, w.Body.String())
	})
}
