package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"matador/internal/core"
	ports "matador/internal/sheets"
)

// fakeSheets emulates the subset of the Sheets v4 API the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	sheetID int64
	calls   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.calls = append(f.calls, r.Method+" "+path)
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/values/Transacciones!A:A"):
		col := make([][]any, len(f.rows))
		for i, row := range f.rows {
			col[i] = []any{row[0]}
		}
		writeJSON(w, map[string]any{"range": "Transacciones!A:A", "values": col})

	case r.Method == http.MethodPut && strings.Contains(path, "/values/Transacciones!A"):
		rng := path[strings.LastIndex(path, "!A")+2:]
		n, err := strconv.Atoi(rng[:strings.Index(rng, ":")])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vals := decodeValues(w, r)
		for len(f.rows) < n {
			f.rows = append(f.rows, []any{""})
		}
		f.rows[n-1] = vals[0]
		writeJSON(w, map[string]any{})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, "expected RAW input", http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, decodeValues(w, r)...)
		writeJSON(w, map[string]any{})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				DeleteDimension struct {
					Range struct {
						SheetID    int64 `json:"sheetId"`
						StartIndex int   `json:"startIndex"`
						EndIndex   int   `json:"endIndex"`
					} `json:"range"`
				} `json:"deleteDimension"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		rg := req.Requests[0].DeleteDimension.Range
		if rg.SheetID != f.sheetID {
			http.Error(w, "wrong sheet", http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows[:rg.StartIndex], f.rows[rg.EndIndex:]...)
		writeJSON(w, map[string]any{})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		writeJSON(w, map[string]any{"sheets": []any{
			map[string]any{"properties": map[string]any{"sheetId": 99, "title": "Otra"}},
			map[string]any{"properties": map[string]any{"sheetId": f.sheetID, "title": "Transacciones"}},
		}})

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func decodeValues(w http.ResponseWriter, r *http.Request) [][]any {
	var vr struct {
		Values [][]any `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&vr)
	return vr.Values
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeSheets) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.rows))
	for i, r := range f.rows {
		b, _ := json.Marshal(r[0])
		out[i] = strings.Trim(string(b), `"`)
	}
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{sheetID: 7}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewWithOptions(context.Background(), "sid", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	return c, fake
}

func tx(id int64, cents int64, desc string) core.Transaction {
	at := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	return core.Transaction{
		ID: id, UserID: 1, Phone: "+5215512345678",
		Type: core.AntExpense, Category: "Café", Amount: core.Cents(cents),
		Description: desc, Date: at, UpdatedAt: at,
	}
}

func TestUpsertAppendsThenUpdates(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, tx(1, 2500, "café")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Upsert(ctx, tx(2, 1500, "=HYPERLINK(\"x\")")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Upsert(ctx, tx(1, 3000, "café grande")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if got, want := strings.Join(fake.ids(), ","), "ID,1,2"; got != want {
		t.Fatalf("ids = %s, want %s", got, want)
	}
	row := fake.rows[1]
	if row[5] != 30.0 || row[6] != "café grande" || row[1] != "2025-03-14" {
		t.Errorf("updated row = %v", row)
	}
	if fake.rows[0][4] != ports.Header[4] {
		t.Errorf("header = %v", fake.rows[0])
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		if err := c.Upsert(ctx, tx(id, 100, "x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := strings.Join(fake.ids(), ","); got != "ID,1,3" {
		t.Fatalf("ids = %s", got)
	}
	if err := c.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete of missing row: %v", err)
	}
	if err := c.Delete(ctx, 3); err != nil {
		t.Fatal(err)
	}

	lookups := 0
	for _, call := range fake.calls {
		if strings.HasSuffix(call, "/spreadsheets/sid") {
			lookups++
		}
	}
	if lookups != 1 {
		t.Errorf("sheet id looked up %d times, want 1", lookups)
	}
}

func TestNewWithOptionsRequiresSpreadsheet(t *testing.T) {
	if _, err := NewWithOptions(context.Background(), " ", "x", goption.WithoutAuthentication()); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestCredentials(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sa.json"
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"inline wins", Config{CredentialsJSON: `{"inline":true}`, CredentialsFile: path}, `{"inline":true}`, false},
		{"file", Config{CredentialsFile: path}, `{"type":"service_account"}`, false},
		{"missing file", Config{CredentialsFile: dir + "/nope.json"}, "", true},
		{"none", Config{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentials(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("credentials = %s", got)
			}
		})
	}
}

func TestRowOf(t *testing.T) {
	ids := []string{"ID", "4", "12", "7"}
	tests := []struct {
		id   int64
		want int
	}{{4, 2}, {7, 4}, {1, 0}}
	for _, tt := range tests {
		if got := rowOf(ids, tt.id); got != tt.want {
			t.Errorf("rowOf(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}
