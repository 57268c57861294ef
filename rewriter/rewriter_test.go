package rewriter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/mozilla/telemetry-pipeline/histogramcache"
	"github.com/mozilla/telemetry-pipeline/metrics"
)

func newCacheServingSpec(t *testing.T, specJSON string) *histogramcache.Cache {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(specJSON))
	}))
	t.Cleanup(srv.Close)
	return histogramcache.New(srv.Listener.Addr().String(), t.TempDir(), metrics.New())
}

func TestHappyRewrite(t *testing.T) {
	specJSON := `{"histograms":{"A11Y_IATABLE_USAGE_FLAG":{"kind":"3","min":1,"max":2,"bucket_count":3,"buckets":[0,1,2]}}}`
	cache := newCacheServingSpec(t, specJSON)

	input := `{"ver":1,"histograms":{"A11Y_IATABLE_USAGE_FLAG":{"range":[1,2],"bucket_count":3,"histogram_type":3,"values":{"0":1,"1":0},"sum":4984161763,"sum_squares_lo":1.23415,"sum_squares_hi":1.01}},"info":{"revision":"http://example/rev/a55c55edf302"}}`
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatal(err)
	}

	if ok := Rewrite(cache, doc); !ok {
		t.Fatal("expected rewrite to succeed")
	}
	if doc["ver"].(float64) != 2 {
		t.Fatalf("expected ver 2, got %v", doc["ver"])
	}
	histograms := doc["histograms"].(map[string]interface{})
	got := histograms["A11Y_IATABLE_USAGE_FLAG"].([]interface{})
	want := []float64{1, 0, 0, 4984161763, -1, -1, 1.23415, 1.01}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %v", got)
	}
	for i, w := range want {
		if toFloat(got[i]) != w {
			t.Fatalf("index %d: got %v want %v", i, got[i], w)
		}
	}
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return -9999
}

func TestVersion2IsIdentity(t *testing.T) {
	cache := newCacheServingSpec(t, `{"histograms":{}}`)
	histograms := map[string]interface{}{"X": []interface{}{1.0}}
	doc := map[string]interface{}{"ver": float64(2), "histograms": histograms}

	if ok := Rewrite(cache, doc); !ok {
		t.Fatal("expected ver==2 to be treated as already converted")
	}
	if doc["ver"].(float64) != 2 {
		t.Fatal("ver should remain 2")
	}
	if !reflect.DeepEqual(doc["histograms"], histograms) {
		t.Fatal("expected histograms to be left untouched for ver==2")
	}
}

func TestInvalidVersionFails(t *testing.T) {
	cache := newCacheServingSpec(t, `{"histograms":{}}`)
	doc := map[string]interface{}{"ver": float64(3), "histograms": map[string]interface{}{}}
	if ok := Rewrite(cache, doc); ok {
		t.Fatal("expected ver 3 to fail")
	}
}

func TestStartupPrefixIsRenamed(t *testing.T) {
	specJSON := `{"histograms":{"FOO":{"kind":"1","min":0,"max":1,"bucket_count":1,"buckets":[0]}}}`
	cache := newCacheServingSpec(t, specJSON)

	input := `{"ver":1,"histograms":{"STARTUP_FOO":{"values":{"0":5}}},"info":{"revision":"http://example/rev/b"}}`
	var doc map[string]interface{}
	json.Unmarshal([]byte(input), &doc)

	if ok := Rewrite(cache, doc); !ok {
		t.Fatal("expected rewrite to succeed")
	}
	histograms := doc["histograms"].(map[string]interface{})
	if _, stillStartup := histograms["STARTUP_FOO"]; stillStartup {
		t.Fatal("expected STARTUP_ prefix to be stripped")
	}
	if _, renamed := histograms["FOO"]; !renamed {
		t.Fatal("expected member renamed to FOO")
	}
}

func TestUnknownHistogramFailsRecord(t *testing.T) {
	cache := newCacheServingSpec(t, `{"histograms":{}}`)
	input := `{"ver":1,"histograms":{"UNKNOWN":{"values":{"0":1}}},"info":{"revision":"http://example/rev/c"}}`
	var doc map[string]interface{}
	json.Unmarshal([]byte(input), &doc)

	if ok := Rewrite(cache, doc); ok {
		t.Fatal("expected failure for unknown histogram name")
	}
	if doc["ver"].(float64) != -1 {
		t.Fatalf("expected ver set to -1 on failure, got %v", doc["ver"])
	}
}

func TestCacheMissFailsRecord(t *testing.T) {
	m := metrics.New()
	cache := histogramcache.New("127.0.0.1:1", t.TempDir(), m) // nothing listening there
	input := `{"ver":1,"histograms":{},"info":{"revision":"http://example/rev/d"}}`
	var doc map[string]interface{}
	json.Unmarshal([]byte(input), &doc)
	if ok := Rewrite(cache, doc); ok {
		t.Fatal("expected failure on cache miss")
	}
}
