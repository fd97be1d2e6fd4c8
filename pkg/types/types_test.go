package types

import (
	"encoding/json"
	"testing"
)

func TestStatusNames(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStatus("banned"); err == nil {
		t.Error("ParseStatus accepted an unknown name")
	}
	if got, _ := ParseStatus(" LIVE "); got != Live {
		t.Errorf("ParseStatus is not case-insensitive: %v", got)
	}
}

func TestProgressEventJSON(t *testing.T) {
	ev := ProgressEvent{SequenceIndex: 3, Total: 10, Username: "alice", Status: Suspended}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"sequence_index":3,"total":10,"username":"alice","status":"suspended"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}
