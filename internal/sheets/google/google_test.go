package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"stockhistory/internal/core"
)

func sampleTable() core.Table {
	jan := core.NewRow(core.MustParseDate("2018-01-31"))
	jan.Set("200000", decimal.RequireFromString("35"))
	jan.Set("300000", decimal.RequireFromString("200.5"))
	feb := core.NewRow(core.MustParseDate("2018-02-28"))
	feb.Set("200000", decimal.RequireFromString("21"))
	return core.Merge(core.Table{}, jan, feb)
}

func TestTableValues(t *testing.T) {
	values := tableValues(sampleTable())

	if len(values) != 3 {
		t.Fatalf("tableValues() returned %d rows, want 3", len(values))
	}
	header := toStrings(values[0])
	if strings.Join(header, ",") != "date,200000,300000" {
		t.Errorf("header = %v", header)
	}
	if values[1][0] != "2018-01-31" || values[1][1] != 35.0 || values[1][2] != 200.5 {
		t.Errorf("first row = %v", values[1])
	}
	if values[2][2] != 0.0 {
		t.Errorf("missing cell = %v, want 0", values[2][2])
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		name    string
		values  [][]interface{}
		rows    int
		wantErr bool
	}{
		{name: "empty sheet", values: nil, rows: 0},
		{
			name: "numbers and strings",
			values: [][]interface{}{
				{"date", "200000", "300000"},
				{"2018-01-31", 35.0, "200.50"},
				{"2018-02-28", 21.0},
			},
			rows: 2,
		},
		{
			name:   "blank trailing rows",
			values: [][]interface{}{{"date", "200000"}, {"2018-01-31", 1.0}, {}, {""}},
			rows:   1,
		},
		{
			name:   "serial dates",
			values: [][]interface{}{{"date", "200000"}, {43131.0, 1.0}, {43159.0, 2.0}},
			rows:   2,
		},
		{name: "serial with time part", values: [][]interface{}{{"date", "200000"}, {43131.5, 1.0}}, wantErr: true},
		{name: "missing date header", values: [][]interface{}{{"month", "200000"}}, wantErr: true},
		{name: "bad date", values: [][]interface{}{{"date", "200000"}, {"Jan 2018", 1.0}}, wantErr: true},
		{name: "bad number", values: [][]interface{}{{"date", "200000"}, {"2018-01-31", "n/a"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTable(tt.values)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseTable() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTable() error = %v", err)
			}
			if got.Len() != tt.rows {
				t.Errorf("parseTable() rows = %d, want %d", got.Len(), tt.rows)
			}
		})
	}
}

func TestParseTableRoundTrip(t *testing.T) {
	in := sampleTable()
	out, err := parseTable(tableValues(in))
	if err != nil {
		t.Fatalf("parseTable() error = %v", err)
	}
	if !core.SameDates(in, out) {
		t.Fatal("dates differ after round trip")
	}
	if got := out.Rows[0].Cell("300000"); !got.Equal(decimal.RequireFromString("200.5")) {
		t.Errorf("cell = %s, want 200.5", got)
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Stock value"); got != "'Stock value'" {
		t.Errorf("quoteSheet() = %s", got)
	}
	if got := quoteSheet("Bob's"); got != "'Bob''s'" {
		t.Errorf("quoteSheet() = %s", got)
	}
}

type recordedCall struct {
	method string
	path   string
	query  string
	body   string
}

func newFakeSheets(t *testing.T) (*Client, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recordedCall{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":clear"):
			io.WriteString(w, `{}`)
		case r.Method == http.MethodPut:
			io.WriteString(w, `{"updatedCells": 6}`)
		default:
			io.WriteString(w, `{"values": [["date", "200000"], [43131, 35], [43159, 21]]}`)
		}
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewWithService(svc, "sheet-id"), &calls
}

func TestClientWriteTable(t *testing.T) {
	client, calls := newFakeSheets(t)

	if err := client.WriteTable(context.Background(), "Stock value", sampleTable()); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}

	if len(*calls) != 2 {
		t.Fatalf("got %d API calls, want clear then update", len(*calls))
	}
	clear, update := (*calls)[0], (*calls)[1]
	if clear.method != http.MethodPost || !strings.HasSuffix(clear.path, ":clear") || !strings.Contains(clear.path, "sheet-id") {
		t.Errorf("clear call = %+v", clear)
	}
	if update.method != http.MethodPut {
		t.Errorf("update method = %s, want PUT", update.method)
	}

	var vr struct {
		Values [][]interface{} `json:"values"`
	}
	if err := json.Unmarshal([]byte(update.body), &vr); err != nil {
		t.Fatalf("update body: %v", err)
	}
	if len(vr.Values) != 3 || vr.Values[0][0] != "date" {
		t.Errorf("update values = %v", vr.Values)
	}
}

func TestClientReadTable(t *testing.T) {
	client, calls := newFakeSheets(t)

	got, err := client.ReadTable(context.Background(), "Stock value")
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if got.Len() != 2 || !got.Rows[0].Cell("200000").Equal(decimal.NewFromInt(35)) {
		t.Errorf("ReadTable() = %+v", got)
	}
	want := []core.Date{core.MustParseDate("2018-01-31"), core.MustParseDate("2018-02-28")}
	if dates := got.Dates(); len(dates) != 2 || dates[0] != want[0] || dates[1] != want[1] {
		t.Errorf("ReadTable() dates = %v, want %v", dates, want)
	}
	if q := (*calls)[0].query; !strings.Contains(q, "dateTimeRenderOption=SERIAL_NUMBER") {
		t.Errorf("read query = %s, want serial date rendering", q)
	}
}

func TestClientWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if err := c.WriteTable(context.Background(), "x", core.Table{}); err == nil {
		t.Error("WriteTable() without service should fail")
	}
	if _, err := c.ReadTable(context.Background(), "x"); err == nil {
		t.Error("ReadTable() without service should fail")
	}
}

func TestCredentials(t *testing.T) {
	if _, err := Credentials("", ""); err == nil {
		t.Error("Credentials() without input should fail")
	}
	got, err := Credentials(` {"type":"service_account"} `, "/ignored")
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Errorf("Credentials() = %s, %v", got, err)
	}
	if _, err := Credentials("", "/non/existent.json"); err == nil {
		t.Error("Credentials() with a missing file should fail")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), " ", []byte(`{}`))
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("New() error = %v", err)
	}
}
